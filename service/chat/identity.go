package chat

import (
	"net/http"
	"strings"

	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/tools/ids"
	"PPGateway/tools/security"

	"go.uber.org/zap"
)

const HeaderUserID = "X-User-Id"

// ResolveIdentity picks the identity of a connecting client: a verified
// token subject, then the userId query parameter, then the X-User-Id header.
// Without any credential a synthetic identity is minted.
func ResolveIdentity(r *http.Request, auth security.Options) model.Identity {
	q := r.URL.Query()
	if tok := strings.TrimSpace(q.Get("token")); tok != "" && auth.Enabled() {
		sub, err := security.Subject(auth, tok)
		if err == nil {
			return model.Identity{ID: sub}
		}
		logger.Warn("[Identity] token rejected, using synthetic identity", zap.Error(err))
		return synthetic()
	}
	if id := strings.TrimSpace(q.Get("userId")); id != "" {
		return model.Identity{ID: id}
	}
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return model.Identity{ID: id}
	}
	return synthetic()
}

func synthetic() model.Identity {
	id := model.Identity{ID: ids.Synthetic(), Synthetic: true}
	logger.Debug("[Identity] generated synthetic identity", zap.String("user", id.ID))
	return id
}
