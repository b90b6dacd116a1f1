package server

import (
	"net/http"

	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/usecase"
	"github.com/gin-gonic/gin"
)

type createDriverReq struct {
	Name            string `json:"name" binding:"required,max=120"`
	Phone           string `json:"phone" binding:"required,max=32"`
	CurrentLocation string `json:"currentLocation" binding:"max=64"`
	IsAvailable     bool   `json:"isAvailable"`
	IsActive        *bool  `json:"isActive"`
}

type updateDriverReq struct {
	Name            *string `json:"name" binding:"omitempty,max=120"`
	Phone           *string `json:"phone" binding:"omitempty,max=32"`
	CurrentLocation *string `json:"currentLocation" binding:"omitempty,max=64"`
	IsAvailable     *bool   `json:"isAvailable"`
	IsActive        *bool   `json:"isActive"`
}

type availabilityReq struct {
	IsAvailable *bool `json:"isAvailable" binding:"required"`
}

func (s *Server) handleCreateDriver(c *gin.Context) {
	var req createDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	d, err := s.deps.Drivers.Create(c.Request.Context(), usecase.CreateDriverInput{
		Name:            req.Name,
		Phone:           req.Phone,
		CurrentLocation: req.CurrentLocation,
		IsAvailable:     req.IsAvailable,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) handleListDrivers(c *gin.Context) {
	var (
		f   domain.DriverFilter
		err error
	)
	if f.Available, err = queryBool(c, "available"); err != nil {
		s.fail(c, err)
		return
	}
	if f.Active, err = queryBool(c, "active"); err != nil {
		s.fail(c, err)
		return
	}
	ds, err := s.deps.Drivers.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (s *Server) handleGetDriver(c *gin.Context) {
	id := c.Param("id")
	if !s.selfOrAdmin(c, id) {
		return
	}
	d, err := s.deps.Drivers.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleUpdateDriver(c *gin.Context) {
	id := c.Param("id")
	if !s.selfOrAdmin(c, id) {
		return
	}
	var req updateDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	if req.IsActive != nil && !s.adminOnly(c) {
		return
	}
	d, err := s.deps.Drivers.Update(c.Request.Context(), id, domain.DriverPatch{
		Name:            req.Name,
		Phone:           req.Phone,
		IsAvailable:     req.IsAvailable,
		IsActive:        req.IsActive,
		CurrentLocation: req.CurrentLocation,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleSetAvailability(c *gin.Context) {
	id := c.Param("id")
	if !s.selfOrAdmin(c, id) {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, err)
		return
	}
	d, err := s.deps.Drivers.SetAvailability(c.Request.Context(), id, *req.IsAvailable)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
