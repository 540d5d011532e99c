package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/gateway/middleware"
	"sales-crm/internal/services/user"
	"sales-crm/internal/utils"
)

type UserHTTPHandler struct {
	users   *user.UserHandler
	revoker *utils.TokenRevoker
	db      *gorm.DB
}

func NewUserHTTPHandler(users *user.UserHandler, revoker *utils.TokenRevoker, db *gorm.DB) *UserHTTPHandler {
	return &UserHTTPHandler{
		users:   users,
		revoker: revoker,
		db:      db,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Username        string `json:"username" binding:"required,max=32"`
	Password        string `json:"password" binding:"required,min=10"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

type CreateEmployeeRequest struct {
	Username        string           `json:"username" binding:"required,max=32"`
	Password        string           `json:"password" binding:"required,min=10"`
	ConfirmPassword string           `json:"confirm_password" binding:"required,eqfield=Password"`
	Title           models.Title     `json:"title" binding:"required,oneof=Director Manager Salesperson"`
	ManagedBy       *int64           `json:"managed_by" binding:"required"`
	Commission      *decimal.Decimal `json:"commission" binding:"required"`
	MaxDiscount     *decimal.Decimal `json:"max_discount" binding:"required"`
}

type UpdateEmployeeRequest struct {
	Title       *models.Title    `json:"title,omitempty" binding:"omitempty,oneof=Director Manager Salesperson"`
	ManagedBy   *int64           `json:"managed_by,omitempty"`
	Commission  *decimal.Decimal `json:"commission,omitempty"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
}

type CreateClientRequest struct {
	Username        string `json:"username" binding:"required,max=32"`
	Password        string `json:"password" binding:"required,min=10"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Company         string `json:"company" binding:"required,max=64"`
	SalespersonID   int64  `json:"salesperson_id" binding:"required"`
}

type UpdateClientRequest struct {
	Company       *string `json:"company,omitempty" binding:"omitempty,max=64"`
	SalespersonID *int64  `json:"salesperson_id,omitempty"`
}

type FeedbackRequest struct {
	ToAccountID int64 `json:"to_account_id" binding:"required"`
	IsPositive  *bool `json:"is_positive" binding:"required"`
}

// --- Authentication ---

func (h *UserHTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("login successful", res))
}

func (h *UserHTTPHandler) Logout(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, errorResponse("authentication required"))
		return
	}
	if err := h.revoker.Revoke(c.Request.Context(), claims); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("logged out", nil))
}

func (h *UserHTTPHandler) Me(c *gin.Context) {
	profile, err := h.users.GetProfile(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("profile retrieved successfully", profile))
}

// --- Accounts ---

func (h *UserHTTPHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	account, err := h.users.CreateUser(c.Request.Context(), middleware.Actor(c), user.CreateUserRequest{
		Username:    req.Username,
		Credentials: user.Credentials{Password: req.Password, Confirm: req.ConfirmPassword},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("user created successfully", account))
}

// --- Employees ---

func (h *UserHTTPHandler) CreateEmployee(c *gin.Context) {
	var req CreateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}

	employee, err := h.users.AddEmployee(c.Request.Context(), s, user.AddEmployeeRequest{
		Username:    req.Username,
		Credentials: user.Credentials{Password: req.Password, Confirm: req.ConfirmPassword},
		Title:       req.Title,
		ManagedBy:   req.ManagedBy,
		Commission:  *req.Commission,
		MaxDiscount: *req.MaxDiscount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("employee created successfully", employee))
}

func (h *UserHTTPHandler) ListEmployees(c *gin.Context) {
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	employees, err := h.users.ListEmployees(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("employees retrieved successfully", employees))
}

func (h *UserHTTPHandler) ListSalespeople(c *gin.Context) {
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	salespeople, err := h.users.EligibleSalespeople(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("salespeople retrieved successfully", salespeople))
}

func (h *UserHTTPHandler) UpdateEmployee(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}

	employee, err := h.users.EditEmployee(c.Request.Context(), s, id, user.EditEmployeeRequest{
		Title:       req.Title,
		ManagedBy:   req.ManagedBy,
		Commission:  req.Commission,
		MaxDiscount: req.MaxDiscount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("employee updated successfully", employee))
}

func (h *UserHTTPHandler) DeactivateEmployee(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	if err := h.users.DeactivateEmployee(c.Request.Context(), s, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("employee deactivated", nil))
}

// --- Clients ---

func (h *UserHTTPHandler) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}

	client, err := h.users.AddClient(c.Request.Context(), s, user.AddClientRequest{
		Username:      req.Username,
		Credentials:   user.Credentials{Password: req.Password, Confirm: req.ConfirmPassword},
		Company:       req.Company,
		SalespersonID: req.SalespersonID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("client created successfully", client))
}

func (h *UserHTTPHandler) ListClients(c *gin.Context) {
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	clients, err := h.users.ListClients(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("clients retrieved successfully", clients))
}

func (h *UserHTTPHandler) GetClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	client, err := h.users.GetClient(c.Request.Context(), s, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("client retrieved successfully", client))
}

func (h *UserHTTPHandler) UpdateClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}

	client, err := h.users.EditClient(c.Request.Context(), s, id, user.EditClientRequest{
		Company:       req.Company,
		SalespersonID: req.SalespersonID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("client updated successfully", client))
}

func (h *UserHTTPHandler) DeactivateClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	if err := h.users.DeactivateClient(c.Request.Context(), s, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("client deactivated", nil))
}

// --- Feedback ---

func (h *UserHTTPHandler) GiveFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	fb, err := h.users.GiveFeedback(c.Request.Context(), middleware.Actor(c), req.ToAccountID, *req.IsPositive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("feedback recorded", fb))
}

func (h *UserHTTPHandler) ListFeedback(c *gin.Context) {
	summary, err := h.users.ReceivedFeedback(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("feedback retrieved successfully", summary))
}
