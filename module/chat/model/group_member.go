package model

import "time"

// GroupMember 群成员记录，一条记录对应一个群 + 一个用户。
// 网关只关心 group_id / user_id 与状态，其余字段由业务服务维护。
type GroupMember struct {
	GroupID  string    `bson:"group_id"` // 群ID
	UserID   string    `bson:"user_id"`  // 成员用户ID（唯一键: group_id+user_id）
	Status   int32     `bson:"status"`   // 0=正常,1=已退出,2=被踢,3=禁入(黑名单)
	JoinTime time.Time `bson:"join_time"`
}

const GroupMemberStatusNormal int32 = 0

func (GroupMember) GetTableName() string {
	return "group_members"
}
