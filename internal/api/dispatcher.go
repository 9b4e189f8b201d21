package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/api/middleware"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/characters"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/dreams"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/errcode"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/metrics"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/users"
)

// 支持的 action 名称。
const (
	ActionRegister         = "register"
	ActionLogin            = "login"
	ActionProfile          = "profile"
	ActionCreateCharacter  = "create_character"
	ActionGetCharacters    = "get_characters"
	ActionDeleteCharacter  = "delete_character"
	ActionCreateDream      = "create_dream"
	ActionCheckDreamStatus = "check_dream_status"
	ActionGetDreams        = "get_dreams"
	ActionDeleteDream      = "delete_dream"
)

// MaxBodyBytes 限制单个请求体大小（含 base64 图片）。
const MaxBodyBytes = 32 << 20

type UserService interface {
	Register(ctx context.Context, name, email, password string) error
	Login(ctx context.Context, email, password string) (users.Profile, error)
	Profile(ctx context.Context, email string) (users.Profile, error)
}

type CharacterService interface {
	Create(ctx context.Context, owner, name, description string, images [][]byte) (string, error)
	List(ctx context.Context, owner string) ([]characters.View, error)
	Delete(ctx context.Context, owner, id string) error
}

type DreamService interface {
	Create(ctx context.Context, in dreams.CreateInput) (dreams.View, error)
	CheckStatus(ctx context.Context, id string) (dreams.View, error)
	List(ctx context.Context, owner string) ([]dreams.View, error)
	Delete(ctx context.Context, id string) error
}

// RateLimiter 按 key 计数限流。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LoginGuard 记录失败登录并在超过阈值后锁定账号。
type LoginGuard interface {
	Locked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// actionRequest 是所有 action 共用的请求体，各 action 只读取自己需要的字段。
type actionRequest struct {
	Action             string   `json:"action"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Password           string   `json:"password"`
	Description        string   `json:"description"`
	Images             []string `json:"images"`
	CharacterID        string   `json:"character_id"`
	Prompt             string   `json:"prompt"`
	SourceImageIndex   *int     `json:"source_image_index"`
	// 旧版客户端使用的字段名，等价于 source_image_index。
	SelectedImageIndex *int     `json:"selected_image_index"`
	IdempotencyKey     string   `json:"idempotency_key"`
	DreamID            string   `json:"dream_id"`
}

type actionFunc func(c *gin.Context, req *actionRequest) (gin.H, error)

// Dispatcher 把单一入口的 {action, ...} 请求路由到对应服务。
type Dispatcher struct {
	users      UserService
	characters CharacterService
	dreams     DreamService
	loginLimit RateLimiter
	loginGuard LoginGuard
	actions    map[string]actionFunc
}

type DispatcherOption func(*Dispatcher)

// WithLoginRateLimit 限制每个 IP+邮箱 的登录频率。
func WithLoginRateLimit(l RateLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.loginLimit = l }
}

// WithLoginGuard 启用连续失败锁定。
func WithLoginGuard(g LoginGuard) DispatcherOption {
	return func(d *Dispatcher) { d.loginGuard = g }
}

func NewDispatcher(u UserService, c CharacterService, dr DreamService, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{users: u, characters: c, dreams: dr}
	for _, opt := range opts {
		opt(d)
	}
	d.actions = map[string]actionFunc{
		ActionRegister:         d.register,
		ActionLogin:            d.login,
		ActionProfile:          d.profile,
		ActionCreateCharacter:  d.createCharacter,
		ActionGetCharacters:    d.getCharacters,
		ActionDeleteCharacter:  d.deleteCharacter,
		ActionCreateDream:      d.createDream,
		ActionCheckDreamStatus: d.checkDreamStatus,
		ActionGetDreams:        d.getDreams,
		ActionDeleteDream:      d.deleteDream,
	}
	return d
}

// Handle 是 POST 入口。请求体解析失败时不会调用任何服务。
func (d *Dispatcher) Handle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		BadRequest(c, "Invalid JSON")
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		BadRequest(c, "Missing 'action' field")
		return
	}
	handler, ok := d.actions[action]
	if !ok {
		BadRequest(c, "Unknown action")
		return
	}
	c.Set(metrics.ActionKey, action)
	c.Set(middleware.ActionLogKey, action)

	req.Email = normalizeEmail(req.Email)
	logger := middleware.LoggerFromContext(c).With(slog.String("action", action))

	payload, err := handler(c, &req)
	if err != nil {
		Fail(c, logger, err)
		return
	}
	Success(c, payload)
}

func (d *Dispatcher) register(c *gin.Context, req *actionRequest) (gin.H, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, errcode.Validation("Missing fields")
	}
	return nil, d.users.Register(c.Request.Context(), req.Name, req.Email, req.Password)
}

func (d *Dispatcher) login(c *gin.Context, req *actionRequest) (gin.H, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errcode.Validation("Missing fields")
	}
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if d.loginLimit != nil {
		ok, err := d.loginLimit.Allow(ctx, c.ClientIP()+":"+req.Email)
		if err != nil {
			logger.Warn("login rate limit check failed", slog.Any("error", err))
		} else if !ok {
			return nil, errcode.RateLimited("Rate limit exceeded")
		}
	}
	if d.loginGuard != nil {
		locked, err := d.loginGuard.Locked(ctx, req.Email)
		if err != nil {
			logger.Warn("login lock check failed", slog.Any("error", err))
		} else if locked {
			return nil, errcode.RateLimited("Account temporarily locked")
		}
	}

	profile, err := d.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		if kind := errcode.KindOf(err); d.loginGuard != nil && (kind == errcode.KindAuth || kind == errcode.KindNotFound) {
			if gerr := d.loginGuard.RecordFailure(ctx, req.Email); gerr != nil {
				logger.Warn("record login failure failed", slog.Any("error", gerr))
			}
		}
		return nil, err
	}
	if d.loginGuard != nil {
		if err := d.loginGuard.Reset(ctx, req.Email); err != nil {
			logger.Warn("reset login failures failed", slog.Any("error", err))
		}
	}
	return gin.H{"user": profile}, nil
}

func (d *Dispatcher) profile(c *gin.Context, req *actionRequest) (gin.H, error) {
	profile, err := d.users.Profile(c.Request.Context(), req.Email)
	if err != nil {
		return nil, err
	}
	return gin.H{"user": profile}, nil
}

func (d *Dispatcher) createCharacter(c *gin.Context, req *actionRequest) (gin.H, error) {
	if req.Email == "" || req.Name == "" {
		return nil, errcode.Validation("Missing fields")
	}
	encoded := req.Images
	if len(encoded) > characters.MaxImages {
		encoded = encoded[:characters.MaxImages]
	}
	images := make([][]byte, 0, len(encoded))
	for i, s := range encoded {
		data, err := decodeImage(s)
		if err != nil {
			return nil, errcode.Validation(fmt.Sprintf("image %d is not valid base64", i))
		}
		images = append(images, data)
	}

	id, err := d.characters.Create(c.Request.Context(), req.Email, req.Name, req.Description, images)
	if err != nil {
		return nil, err
	}
	return gin.H{"character_id": id}, nil
}

func (d *Dispatcher) getCharacters(c *gin.Context, req *actionRequest) (gin.H, error) {
	views, err := d.characters.List(c.Request.Context(), req.Email)
	if err != nil {
		return nil, err
	}
	return gin.H{"characters": views}, nil
}

func (d *Dispatcher) deleteCharacter(c *gin.Context, req *actionRequest) (gin.H, error) {
	return nil, d.characters.Delete(c.Request.Context(), req.Email, req.CharacterID)
}

func (d *Dispatcher) createDream(c *gin.Context, req *actionRequest) (gin.H, error) {
	index := req.SourceImageIndex
	if index == nil {
		index = req.SelectedImageIndex
	}
	v, err := d.dreams.Create(c.Request.Context(), dreams.CreateInput{
		Owner:            req.Email,
		CharacterID:      strings.TrimSpace(req.CharacterID),
		Prompt:           req.Prompt,
		SourceImageIndex: index,
		IdempotencyKey:   strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		return nil, err
	}
	payload := gin.H{"dream_id": v.ID, "status": v.Status}
	if v.VideoURL != "" {
		payload["video_url"] = v.VideoURL
	}
	return payload, nil
}

func (d *Dispatcher) checkDreamStatus(c *gin.Context, req *actionRequest) (gin.H, error) {
	v, err := d.dreams.CheckStatus(c.Request.Context(), strings.TrimSpace(req.DreamID))
	if err != nil {
		return nil, err
	}
	return gin.H{"dream": v}, nil
}

func (d *Dispatcher) getDreams(c *gin.Context, req *actionRequest) (gin.H, error) {
	views, err := d.dreams.List(c.Request.Context(), req.Email)
	if err != nil {
		return nil, err
	}
	return gin.H{"dreams": views}, nil
}

func (d *Dispatcher) deleteDream(c *gin.Context, req *actionRequest) (gin.H, error) {
	return nil, d.dreams.Delete(c.Request.Context(), strings.TrimSpace(req.DreamID))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// decodeImage 接受裸 base64 或 data URL。
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
