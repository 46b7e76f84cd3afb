package model

// Identity 连接建立时解析出的用户身份，整个会话期间不变。
// Synthetic 为 true 表示客户端未提供任何凭证，身份由网关随机生成，不能当作已认证用户。
type Identity struct {
	ID        string
	Synthetic bool
}

func (i Identity) String() string { return i.ID }
