package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/interfaces/http/dto"
)

// StoryHandler 故事模板处理器, 只读.
// 模板数据由引导工具导入, 不提供在线编辑
type StoryHandler struct {
	stories repository.StoryRepository
}

// NewStoryHandler 创建故事处理器
func NewStoryHandler(stories repository.StoryRepository) *StoryHandler {
	return &StoryHandler{stories: stories}
}

// List 获取故事模板列表
func (h *StoryHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.stories.List(c.Request.Context(), repository.NewPagination(page, pageSize))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	resp := dto.StoryListResponse{Stories: make([]*dto.StoryResponse, 0, len(result.Items))}
	for _, story := range result.Items {
		resp.Stories = append(resp.Stories, dto.NewStoryResponse(story))
	}
	dto.SuccessWithPage(c, resp, dto.NewPageMeta(page, pageSize, int(result.Total)))
}

// Get 获取单个故事模板
func (h *StoryHandler) Get(c *gin.Context) {
	story, err := h.stories.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if story == nil {
		dto.NotFound(c, "story not found")
		return
	}
	dto.Success(c, dto.NewStoryResponse(story))
}
