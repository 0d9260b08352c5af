package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams     = orz.NewError(10400, "参数无效")
	ErrInvalidToken      = orz.NewError(10403, "令牌无效")
	ErrNotFound          = orz.NewError(10404, "记录不存在")
	ErrInvalidTransition = orz.NewError(10001, "当前状态不允许该操作")
	ErrPositionNotOpen   = orz.NewError(10002, "持仓已平仓")
	ErrUnknownWorkflow   = orz.NewError(10003, "工作流不存在")
	ErrNoOpenPositions   = orz.NewError(10004, "该标的没有持仓")
	ErrNotSupport        = orz.NewError(10010, "尚未支持")
)
