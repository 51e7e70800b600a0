package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"storyforge-api/internal/application/playthrough"
	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/infrastructure/persistence/redis"
	"storyforge-api/internal/interfaces/http/dto"
	"storyforge-api/pkg/logger"
)

const stateCacheTTL = 30 * time.Second

// PlaythroughHandler 游玩会话处理器
type PlaythroughHandler struct {
	service      *playthrough.Service
	playthroughs repository.PlaythroughRepository
	stories      repository.StoryRepository
	characters   repository.CharacterRepository
	states       repository.CharacterStateRepository
	cache        *redis.Cache
	emotion      config.EmotionConfig
}

// NewPlaythroughHandler 创建游玩会话处理器
func NewPlaythroughHandler(
	service *playthrough.Service,
	playthroughs repository.PlaythroughRepository,
	stories repository.StoryRepository,
	characters repository.CharacterRepository,
	states repository.CharacterStateRepository,
	cache *redis.Cache,
	emotion config.EmotionConfig,
) *PlaythroughHandler {
	return &PlaythroughHandler{
		service:      service,
		playthroughs: playthroughs,
		stories:      stories,
		characters:   characters,
		states:       states,
		cache:        cache,
		emotion:      emotion,
	}
}

// Start 从故事模板开局新的游玩会话
func (h *PlaythroughHandler) Start(c *gin.Context) {
	var req dto.StartPlaythroughRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	play, session, err := h.service.Start(c.Request.Context(), req.StoryID, req.Title)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	resp := dto.NewPlaythroughResponse(play)
	resp.SessionID = session.ID
	if story, err := h.stories.GetByID(c.Request.Context(), play.StoryID); err == nil && story != nil {
		resp.OpeningText = story.OpeningText
	}
	dto.Created(c, resp)
}

// Get 获取游玩会话
func (h *PlaythroughHandler) Get(c *gin.Context) {
	play, err := h.playthroughs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if play == nil {
		dto.NotFound(c, "playthrough not found")
		return
	}
	dto.Success(c, dto.NewPlaythroughResponse(play))
}

// ListCharacters 获取游玩会话的角色列表
func (h *PlaythroughHandler) ListCharacters(c *gin.Context) {
	playthroughID := c.Param("id")
	play, err := h.playthroughs.GetByID(c.Request.Context(), playthroughID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if play == nil {
		dto.NotFound(c, "playthrough not found")
		return
	}

	characters, err := h.characters.ListByPlaythrough(c.Request.Context(), playthroughID)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	resp := dto.CharacterListResponse{Characters: make([]*dto.CharacterResponse, 0, len(characters))}
	for _, character := range characters {
		resp.Characters = append(resp.Characters, dto.NewCharacterResponse(character))
	}
	dto.Success(c, resp)
}

// GetCharacterState 获取角色当前状态, 情绪强度返回衰减后的有效值.
// 读路径走缓存, 状态回写后由回写器失效
func (h *PlaythroughHandler) GetCharacterState(c *gin.Context) {
	ctx := c.Request.Context()
	characterID := c.Param("id")

	character, err := h.characters.GetByID(ctx, characterID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if character == nil || character.IsTemplate() {
		dto.NotFound(c, "character not found")
		return
	}

	loader := func() (interface{}, error) {
		return h.states.GetByCharacter(ctx, characterID)
	}

	var state *entity.CharacterState
	if h.cache != nil {
		key := redis.CharacterStateKey(*character.PlaythroughID, characterID)
		data, err := h.cache.GetOrLoadSafe(ctx, key, stateCacheTTL, loader)
		if err == nil {
			var cached entity.CharacterState
			if json.Unmarshal(data, &cached) == nil {
				state = &cached
			}
		} else {
			logger.FromContext(ctx).Warn("state cache read failed", "character_id", characterID, "error", err)
		}
	}
	if state == nil {
		state, err = h.states.GetByCharacter(ctx, characterID)
		if err != nil {
			dto.FromError(c, err)
			return
		}
	}
	if state == nil {
		dto.NotFound(c, "character state not found")
		return
	}

	now := time.Now()
	dto.Success(c, &dto.CharacterStateResponse{
		CharacterID:      characterID,
		CurrentEmotion:   state.EffectiveEmotion(now, h.emotion.AcuteHalfLife, h.emotion.DeepHalfLife),
		EmotionIntensity: state.EffectiveIntensity(now, h.emotion.AcuteHalfLife, h.emotion.DeepHalfLife),
		Stress:           state.Stress,
		Energy:           state.Energy,
		PrimaryConcern:   state.PrimaryConcern,
		UpdatedAt:        state.UpdatedAt.Format(time.RFC3339),
	})
}
