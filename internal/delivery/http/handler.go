package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/fs"
)

const sessionHeader = "X-Session-ID"

type Handler struct {
	inst *fs.Instance
}

func NewHandler(inst *fs.Instance) *Handler {
	return &Handler{inst: inst}
}

type response struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
}

func httpStatus(code domain.ErrorCode) int {
	switch code {
	case domain.Success:
		return http.StatusOK
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeInvalidSession:
		return http.StatusUnauthorized
	case domain.CodeFileExists, domain.CodeDirectoryNotEmpty:
		return http.StatusConflict
	case domain.CodeNoSpace:
		return http.StatusInsufficientStorage
	case domain.CodeInvalidPath, domain.CodeInvalidConfig, domain.CodeInvalidOperation:
		return http.StatusBadRequest
	case domain.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, err error, data interface{}) {
	code := domain.Code(err)
	c.JSON(httpStatus(code), response{
		Code:    code,
		Message: code.Message(),
		Data:    data,
	})
}

func badRequest(c *gin.Context) {
	respond(c, domain.ErrInvalidPath, nil)
}

func sessionID(c *gin.Context) string {
	return c.GetHeader(sessionHeader)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	id, err := h.inst.Login(req.Username, req.Password)
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, gin.H{"session_id": id})
}

func (h *Handler) Logout(c *gin.Context) {
	respond(c, h.inst.Logout(sessionID(c)), nil)
}

func (h *Handler) Session(c *gin.Context) {
	sess, err := h.inst.SessionInfo(sessionID(c))
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, gin.H{
		"session_id":    sess.ID,
		"username":      sess.User.Username,
		"role":          sess.User.Role.String(),
		"created_at":    sess.CreatedAt,
		"last_activity": sess.LastActivity,
	})
}

type pathRequest struct {
	Path string `json:"path"`
}

type createFileRequest struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

func (h *Handler) CreateFile(c *gin.Context) {
	var req createFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileCreate(sessionID(c), req.Path, []byte(req.Data)), nil)
}

func (h *Handler) ReadFile(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	data, err := h.inst.FileRead(sessionID(c), req.Path)
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, gin.H{"data": string(data), "size": len(data)})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileDelete(sessionID(c), req.Path), nil)
}

type renameRequest struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (h *Handler) RenameFile(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileRename(sessionID(c), req.OldPath, req.NewPath), nil)
}

type editRequest struct {
	Path  string `json:"path"`
	Data  string `json:"data"`
	Index uint32 `json:"index"`
}

func (h *Handler) EditFile(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileEdit(sessionID(c), req.Path, []byte(req.Data), req.Index), nil)
}

func (h *Handler) TruncateFile(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileTruncate(sessionID(c), req.Path), nil)
}

func (h *Handler) FileExists(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.FileExists(sessionID(c), req.Path), nil)
}

func (h *Handler) CreateDir(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.DirCreate(sessionID(c), req.Path), nil)
}

func (h *Handler) ListDir(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	entries, err := h.inst.DirList(sessionID(c), req.Path)
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, gin.H{"entries": entries, "count": len(entries)})
}

func (h *Handler) DeleteDir(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.DirDelete(sessionID(c), req.Path), nil)
}

func (h *Handler) DirExists(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.DirExists(sessionID(c), req.Path), nil)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	role := domain.RoleNormal
	if req.Admin {
		role = domain.RoleAdmin
	}
	respond(c, h.inst.UserCreate(sessionID(c), req.Username, req.Password, role), nil)
}

type deleteUserRequest struct {
	Username string `json:"username"`
}

func (h *Handler) DeleteUser(c *gin.Context) {
	var req deleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.UserDelete(sessionID(c), req.Username), nil)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.inst.UserList(sessionID(c))
	if err != nil {
		respond(c, err, nil)
		return
	}

	type userView struct {
		Username  string `json:"username"`
		Role      string `json:"role"`
		CreatedAt int64  `json:"created_at"`
		LastLogin int64  `json:"last_login"`
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			Username:  u.Username,
			Role:      u.Role.String(),
			CreatedAt: u.CreatedTime,
			LastLogin: u.LastLogin,
		})
	}
	respond(c, nil, gin.H{"users": views, "count": len(views)})
}

func (h *Handler) Metadata(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	meta, err := h.inst.Metadata(sessionID(c), req.Path)
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, meta)
}

type chmodRequest struct {
	Path        string `json:"path"`
	Permissions uint32 `json:"permissions"`
}

func (h *Handler) Chmod(c *gin.Context) {
	var req chmodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	respond(c, h.inst.SetPermissions(sessionID(c), req.Path, req.Permissions), nil)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.inst.Stats(sessionID(c))
	if err != nil {
		respond(c, err, nil)
		return
	}
	respond(c, nil, stats)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
