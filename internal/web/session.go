package web

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	// SessionName 会话 cookie 名称
	SessionName = "genai-studio-session"
	// sessionIDKey 会话中保存 Studio ID 的键
	sessionIDKey = "studio_id"
)

func newSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 天
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// sessionID 返回当前浏览器会话的 Studio ID，没有时生成并写回 cookie
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	// 解码失败（例如密钥更换）时 Get 仍返回一个新会话
	session, _ := s.store.Get(r, SessionName)

	if id, ok := session.Values[sessionIDKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	session.Values[sessionIDKey] = id
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}
