package server

import (
	"net/http"
	"strconv"
	"strings"

	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/usecase"
	"github.com/gin-gonic/gin"
)

type orderItemReq struct {
	Name     string       `json:"name" binding:"required,max=200"`
	Quantity int          `json:"quantity" binding:"required,gt=0,lte=1000"`
	Price    domain.Money `json:"price" binding:"gte=0,lte=100000000000"`
}

type createOrderReq struct {
	CustomerName    string         `json:"customerName" binding:"required,max=120"`
	CustomerPhone   string         `json:"customerPhone" binding:"required,max=32"`
	DeliveryAddress string         `json:"deliveryAddress" binding:"required,max=500"`
	RestaurantID    string         `json:"restaurantId" binding:"max=64"`
	PaymentMethod   string         `json:"paymentMethod" binding:"omitempty,oneof=cash card"`
	Notes           string         `json:"notes" binding:"max=1000"`
	Items           []orderItemReq `json:"items" binding:"required,min=1,max=100,dive"`
	Subtotal        *domain.Money  `json:"subtotal"`
	DeliveryFee     domain.Money   `json:"deliveryFee" binding:"gte=0,lte=100000000000"`
	TotalAmount     *domain.Money  `json:"totalAmount"`
	Total           *domain.Money  `json:"total"`
	DriverEarnings  *domain.Money  `json:"driverEarnings"`
}

type driverRefReq struct {
	DriverID string `json:"driverId"`
}

type statusReq struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed preparing ready on_way delivered cancelled"`
}

type cancelReq struct {
	Reason string `json:"reason" binding:"max=500"`
}

type patchOrderReq struct {
	Status   *string `json:"status"`
	DriverID *string `json:"driverId"`
}

type trackingResp struct {
	Order  *domain.Order          `json:"order"`
	Events []domain.TrackingEvent `json:"events"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	total := req.TotalAmount
	if total == nil {
		total = req.Total
	} else if req.Total != nil && *req.Total != *total {
		s.err(c, http.StatusBadRequest, "BadRequest", "total and totalAmount disagree")
		return
	}
	items := make([]domain.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.OrderItem{Name: strings.TrimSpace(it.Name), Quantity: it.Quantity, Price: it.Price}
	}
	o, err := s.deps.Orders.Create(c.Request.Context(), usecase.CreateOrderInput{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		RestaurantID:    req.RestaurantID,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Items:           items,
		Subtotal:        req.Subtotal,
		DeliveryFee:     req.DeliveryFee,
		TotalAmount:     total,
		DriverEarnings:  req.DriverEarnings,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	o, err := s.deps.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleListOrders(c *gin.Context) {
	f := domain.OrderFilter{
		DriverID:   c.Query("driverId"),
		Unassigned: c.Query("unassigned") == "true",
	}
	if st := c.Query("status"); st != "" {
		for _, v := range strings.Split(st, ",") {
			f.Statuses = append(f.Statuses, domain.OrderStatus(strings.TrimSpace(v)))
		}
	}
	var ok bool
	if f.Limit, ok = s.queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = s.queryInt(c, "offset"); !ok {
		return
	}
	if a := actorOf(c); a.Type == domain.ActorDriver {
		f.DriverID = a.ID
	}
	orders, err := s.deps.Orders.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleAvailableOrders(c *gin.Context) {
	driverID := c.Query("driverId")
	if a := actorOf(c); a.Type == domain.ActorDriver && driverID == "" {
		driverID = a.ID
	}
	if driverID == "" {
		s.err(c, http.StatusBadRequest, "BadRequest", "driverId required")
		return
	}
	if !s.selfOrAdmin(c, driverID) {
		return
	}
	orders, err := s.deps.Orders.Available(c.Request.Context(), driverID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleAcceptOrder(c *gin.Context) {
	var req driverRefReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, err)
			return
		}
	}
	a := actorOf(c)
	if req.DriverID == "" && a.Type == domain.ActorDriver {
		req.DriverID = a.ID
	}
	s.accept(c, req.DriverID)
}

func (s *Server) handleAssignDriver(c *gin.Context) {
	var req driverRefReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	s.accept(c, req.DriverID)
}

func (s *Server) accept(c *gin.Context, driverID string) {
	o, err := s.deps.Orders.Accept(c.Request.Context(), c.Param("id"), driverID, actorOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	o, err := s.deps.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), domain.OrderStatus(req.Status), actorOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, err)
			return
		}
	}
	o, err := s.deps.Orders.Cancel(c.Request.Context(), c.Param("id"), req.Reason, actorOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// handlePatchOrder serves the generic update used by older clients. A
// driverId goes through the accept path and a status through the state
// machine; nothing else on an order is writable after creation.
func (s *Server) handlePatchOrder(c *gin.Context) {
	var req patchOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	if req.Status == nil && req.DriverID == nil {
		s.err(c, http.StatusBadRequest, "BadRequest", "nothing to update")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	actor := actorOf(c)
	var (
		o   *domain.Order
		err error
	)
	if req.DriverID != nil {
		if actor.Type != domain.ActorDriver || actor.ID != *req.DriverID {
			if !s.adminOnly(c) {
				return
			}
		}
		if o, err = s.deps.Orders.Accept(ctx, id, *req.DriverID, actor); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Status != nil {
		st, perr := domain.ParseOrderStatus(*req.Status)
		if perr != nil {
			s.err(c, http.StatusBadRequest, "BadRequest", perr.Error())
			return
		}
		if o, err = s.deps.Orders.UpdateStatus(ctx, id, st, actor); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleTrackOrder(c *gin.Context) {
	o, events, err := s.deps.Orders.Track(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trackingResp{Order: o, Events: events})
}

func (s *Server) adminOnly(c *gin.Context) bool {
	if s.deps.Auth.Enabled() && actorOf(c).Type != domain.ActorAdmin {
		s.err(c, http.StatusForbidden, "Forbidden", "admin role required")
		return false
	}
	return true
}

func (s *Server) queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		s.err(c, http.StatusBadRequest, "BadRequest", key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, usecase.ErrBadRequest(key + " must be true or false")
	}
	return &b, nil
}
