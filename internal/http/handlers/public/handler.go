package public

import "github.com/affpay-next/internal/provider"

// Handler 对外接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建对外处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
