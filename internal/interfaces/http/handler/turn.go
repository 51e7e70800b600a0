package handler

import (
	"github.com/gin-gonic/gin"

	appturn "storyforge-api/internal/application/turn"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/interfaces/http/dto"
	"storyforge-api/pkg/logger"
)

// TurnHandler 回合处理器
type TurnHandler struct {
	pipeline *appturn.Pipeline
	turns    repository.TurnRepository
	relCfg   config.RelationshipConfig
}

// NewTurnHandler 创建回合处理器
func NewTurnHandler(pipeline *appturn.Pipeline, turns repository.TurnRepository, relCfg config.RelationshipConfig) *TurnHandler {
	return &TurnHandler{pipeline: pipeline, turns: turns, relCfg: relCfg}
}

// Process 处理一个玩家回合, 同步执行到释放
func (h *TurnHandler) Process(c *gin.Context) {
	playthroughID := c.Param("id")

	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.PlaythroughIDKey, playthroughID)
	ctx = logger.WithContext(ctx, logger.SessionIDKey, req.SessionID)

	result, err := h.pipeline.Execute(ctx, playthroughID, req.SessionID, req.Action)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.NewTurnResponse(result, h.relCfg))
}

// GetAudit 按 ID 获取回合审计记录
func (h *TurnHandler) GetAudit(c *gin.Context) {
	turn, err := h.turns.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if turn == nil {
		dto.NotFound(c, "turn not found")
		return
	}
	dto.Success(c, dto.NewTurnAuditResponse(turn))
}
