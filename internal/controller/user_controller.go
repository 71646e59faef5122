package controller

import (
	"lifecircle_backend/internal/repository"
	"lifecircle_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// UserController 用户目录查询 账号信息由外部系统维护，这里只读
type UserController struct {
	UserRepo *repository.UserRepository
}

func NewUserController(userRepo *repository.UserRepository) *UserController {
	return &UserController{UserRepo: userRepo}
}

// SearchUsers godoc
// @Summary 用户模糊搜索
// @Description 按昵称/邮箱搜索用户，结果交给批量状态查询标注连接状态
// @Tags 用户
// @Produce  json
// @Security ApiKeyAuth
// @Param   q query string true "搜索关键字"
// @Success 200 {object} util.Response{data=[]model.User} "成功"
// @Router /users/search [get]
func (ctrl *UserController) SearchUsers(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	query := c.Query("q")
	if query == "" {
		util.BadRequest(c, "缺少搜索关键字")
		return
	}

	users, err := ctrl.UserRepo.Search(query, 20)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, users)
}
