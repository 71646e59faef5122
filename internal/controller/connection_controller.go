package controller

import (
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/service"
	"lifecircle_backend/internal/util"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ConnectionController 处理连接图相关的HTTP请求
type ConnectionController struct {
	ConnectionService *service.ConnectionService
	CategoryService   *service.CategoryService
}

// SendConnectionRequestRequest 发送连接申请请求
type SendConnectionRequestRequest struct {
	ReceiverID uint   `json:"receiverId" binding:"required" example:"2"`
	Message    string `json:"message" example:"我是王小明"`
}

// UpdateCategoryFlagsRequest 更新分类可见性请求
type UpdateCategoryFlagsRequest struct {
	Flags model.CategoryFlags `json:"flags" binding:"required" swaggertype:"object,boolean" example:"drinking:true,travel:false"`
}

func NewConnectionController(connectionService *service.ConnectionService, categoryService *service.CategoryService) *ConnectionController {
	return &ConnectionController{
		ConnectionService: connectionService,
		CategoryService:   categoryService,
	}
}

// SendRequest godoc
// @Summary 发送连接申请
// @Description 向目标用户发送连接申请；若对方已先发来申请则直接合并建立连接
// @Tags 连接
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   request body SendConnectionRequestRequest true "发送连接申请请求"
// @Success 201 {object} util.Response{data=service.SendResult} "成功"
// @Failure 400 {object} util.Response "参数错误"
// @Failure 404 {object} util.Response "目标用户不存在"
// @Failure 409 {object} util.Response "冲突：已连接/已有在途申请/自连"
// @Router /connections/requests [post]
func (ctrl *ConnectionController) SendRequest(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	var req SendConnectionRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	result, err := ctrl.ConnectionService.SendRequest(claims.UserID, req.ReceiverID, req.Message)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Created(c, result)
}

// AcceptRequest godoc
// @Summary 接受连接申请
// @Description 接受一条发给自己的连接申请，建立双向连接
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "申请ID"
// @Success 200 {object} util.Response{data=service.EdgePair} "成功"
// @Failure 404 {object} util.Response "申请不存在"
// @Failure 409 {object} util.Response "已经连接"
// @Failure 410 {object} util.Response "申请已过期"
// @Router /connections/requests/{id}/accept [post]
func (ctrl *ConnectionController) AcceptRequest(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	pair, err := ctrl.ConnectionService.AcceptRequest(c.Param("id"), claims.UserID)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, pair)
}

// ListPendingRequests godoc
// @Summary 收到的在途申请列表
// @Description 返回未过期的收到的连接申请，过期申请读取时即被清理
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.ConnectionRequest} "成功"
// @Router /connections/requests/pending [get]
func (ctrl *ConnectionController) ListPendingRequests(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	reqs, err := ctrl.ConnectionService.ListPendingRequests(claims.UserID)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, reqs)
}

// ListConnections godoc
// @Summary 已连接用户列表
// @Description 返回与当前用户互相连接的用户，可按昵称/邮箱过滤
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Param   q query string false "搜索关键字"
// @Success 200 {object} util.Response{data=[]model.User} "成功"
// @Router /connections [get]
func (ctrl *ConnectionController) ListConnections(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	users, err := ctrl.ConnectionService.ListConnections(claims.UserID, c.Query("q"))
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, users)
}

// ConnectedIDs godoc
// @Summary 已连接用户ID列表
// @Description 供事件流水线做可见性过滤的只读入口，带缓存
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]int} "成功"
// @Router /connections/ids [get]
func (ctrl *ConnectionController) ConnectedIDs(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	ids, err := ctrl.ConnectionService.ConnectedIDs(claims.UserID)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, ids)
}

// ConnectionStatuses godoc
// @Summary 批量连接状态查询
// @Description 对候选用户集合批量计算 isConnected / hasPendingRequest
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Param   ids query string true "候选用户ID，逗号分隔" example(1,2,3)
// @Success 200 {object} util.Response{data=[]service.ConnectionStatus} "成功"
// @Failure 400 {object} util.Response "参数错误"
// @Router /connections/status [get]
func (ctrl *ConnectionController) ConnectionStatuses(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	candidateIDs, err := parseIDList(c.Query("ids"))
	if err != nil {
		util.BadRequest(c, "ids 参数格式错误")
		return
	}

	statuses, err := ctrl.ConnectionService.ConnectionStatuses(claims.UserID, candidateIDs)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, statuses)
}

// UpdateCategoryFlags godoc
// @Summary 更新分类可见性开关
// @Description 把请求里的开关合并进自己指向目标用户的边；任何未开启的分类 key 都会整体拒绝
// @Tags 连接
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   targetId path int true "目标用户ID"
// @Param   request body UpdateCategoryFlagsRequest true "更新分类可见性请求"
// @Success 200 {object} util.Response "成功，返回合并后的完整开关"
// @Failure 400 {object} util.Response "分类未开启"
// @Failure 404 {object} util.Response "连接不存在"
// @Router /connections/{targetId}/categories [put]
func (ctrl *ConnectionController) UpdateCategoryFlags(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("targetId"), 10, 64)
	if err != nil {
		util.BadRequest(c, "targetId 参数格式错误")
		return
	}

	var req UpdateCategoryFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	merged, err := ctrl.CategoryService.UpdateFlags(claims.UserID, uint(targetID), req.Flags)
	if err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, gin.H{"mergedFlags": merged})
}

// DeleteConnection godoc
// @Summary 删除连接
// @Description 删除自己指向目标用户的边；反向边尽力删除，失败不影响结果
// @Tags 连接
// @Produce  json
// @Security ApiKeyAuth
// @Param   targetId path int true "目标用户ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "连接不存在"
// @Router /connections/{targetId} [delete]
func (ctrl *ConnectionController) DeleteConnection(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("targetId"), 10, 64)
	if err != nil {
		util.BadRequest(c, "targetId 参数格式错误")
		return
	}

	if err := ctrl.ConnectionService.DeleteConnection(claims.UserID, uint(targetID)); err != nil {
		util.AppErrorResponse(c, err)
		return
	}
	util.Success(c, gin.H{})
}

func parseIDList(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	seen := make(map[uint]bool, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		if seen[uint(id)] {
			continue
		}
		seen[uint(id)] = true
		ids = append(ids, uint(id))
	}
	return ids, nil
}
