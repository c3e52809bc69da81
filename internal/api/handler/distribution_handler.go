package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/payout-engine/internal/service"
	"github.com/d60-Lab/payout-engine/pkg/response"
)

type createDistributionRequest struct {
	ProjectID string           `json:"project_id" binding:"required"`
	// Amount 接受 JSON 数字或字符串，均按任意精度解析
	Amount    *decimal.Decimal `json:"amount" binding:"required,minor_units" swaggertype:"string" example:"1000000"`
	Metadata  map[string]any   `json:"metadata"`
}

type pageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type holderURI struct {
	Address string `uri:"address" binding:"required,ledger_address"`
}

// CreateDistribution 创建分发（异步处理）
// @Summary 创建按持仓比例分红
// @Description 立即返回 pending 状态的分发，快照、分配与转账在后台执行
// @Tags 分发
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createDistributionRequest true "分发信息，amount 为最小单位整数"
// @Success 202 {object} response.Response{data=model.Distribution}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/distributions [post]
func (h *Handler) CreateDistribution(c *gin.Context) {
	var req createDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	d, err := h.distService.CreateDistribution(c.Request.Context(), req.ProjectID, *req.Amount, req.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	response.Accepted(c, d)
}

// GetDistribution 查询分发
// @Summary 查询分发
// @Tags 分发
// @Produce json
// @Param id path string true "分发ID"
// @Success 200 {object} response.Response{data=model.Distribution}
// @Failure 404 {object} response.Response
// @Router /api/v1/distributions/{id} [get]
func (h *Handler) GetDistribution(c *gin.Context) {
	d, err := h.queryService.GetDistribution(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, d)
}

// GetDistributionSummary 分发汇总
// @Summary 分发汇总（各状态笔数与金额）
// @Tags 分发
// @Produce json
// @Param id path string true "分发ID"
// @Success 200 {object} response.Response{data=service.DistributionSummary}
// @Failure 404 {object} response.Response
// @Router /api/v1/distributions/{id}/summary [get]
func (h *Handler) GetDistributionSummary(c *gin.Context) {
	sum, err := h.queryService.GetDistributionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, sum)
}

// ListDistributionPayments 分发下的转账
// @Summary 查询分发下的转账记录
// @Tags 分发
// @Produce json
// @Param id path string true "分发ID"
// @Param limit query int false "每页数量（1-100）" default(10)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=response.PageData}
// @Failure 404 {object} response.Response
// @Router /api/v1/distributions/{id}/payments [get]
func (h *Handler) ListDistributionPayments(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.queryService.GetDistributionPayments(c.Request.Context(), c.Param("id"), q.Limit, q.Offset)
	if err != nil {
		fail(c, err)
		return
	}
	limit, offset := service.NormalizePage(q.Limit, q.Offset)
	response.Success(c, response.PageData{Limit: limit, Offset: offset, List: list})
}

// ResumeDistribution 重新提交未完成的分发
// @Summary 恢复处理（仅执行仍为 pending 的转账，不重试失败的转账）
// @Tags 分发
// @Produce json
// @Security BearerAuth
// @Param id path string true "分发ID"
// @Success 202 {object} response.Response{data=model.Distribution}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/distributions/{id}/resume [post]
func (h *Handler) ResumeDistribution(c *gin.Context) {
	d, err := h.distService.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Accepted(c, d)
}

// ListProjectDistributions 项目的分发列表
// @Summary 查询项目的分发（按创建时间倒序）
// @Tags 分发
// @Produce json
// @Param project_id path string true "项目ID"
// @Param limit query int false "每页数量（1-100）" default(10)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/projects/{project_id}/distributions [get]
func (h *Handler) ListProjectDistributions(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.queryService.GetProjectDistributions(c.Request.Context(), c.Param("project_id"), q.Limit, q.Offset)
	if err != nil {
		fail(c, err)
		return
	}
	limit, offset := service.NormalizePage(q.Limit, q.Offset)
	response.Success(c, response.PageData{Limit: limit, Offset: offset, List: list})
}

// ListHolderPayments 持有人收款记录
// @Summary 查询持有人的收款记录
// @Tags 持有人
// @Produce json
// @Param address path string true "持有人地址"
// @Param limit query int false "每页数量（1-100）" default(10)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=service.HolderPayments}
// @Failure 400 {object} response.Response
// @Router /api/v1/holders/{address}/payments [get]
func (h *Handler) ListHolderPayments(c *gin.Context) {
	var uri holderURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.queryService.GetHolderPayments(c.Request.Context(), uri.Address, q.Limit, q.Offset)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}
