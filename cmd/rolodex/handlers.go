package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bluesky-social/rolodex/lookup"
	"github.com/bluesky-social/rolodex/pkg/env"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

type UsernameRequest struct {
	Username string `json:"username" validate:"required"`
}

type UsernameResponse struct {
	UserID string `json:"userId"`
}

// GET /api/users/:userId
func (srv *Server) HandleGetUser(c echo.Context) error {
	userID := c.Param("userId")
	res, err := srv.users.Resolve(c.Request().Context(), userID)
	if err != nil {
		srv.logger.Error("failed to fetch user data", "userId", userID, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "Failed to fetch user data",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, res)
}

// POST /api/users/by-username
func (srv *Server) HandleResolveUsername(c echo.Context) error {
	var body UsernameRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "Invalid request body",
			Details: fmt.Sprintf("%v", err),
		})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{Error: "Username is required"})
	}

	userID, err := srv.usernames.Resolve(c.Request().Context(), body.Username)
	if errors.Is(err, lookup.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, GenericError{Error: "Username is required"})
	} else if errors.Is(err, lookup.ErrNotFound) {
		return c.JSON(http.StatusNotFound, GenericError{Error: "User not found"})
	} else if err != nil {
		srv.logger.Error("failed to resolve username", "username", body.Username, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "Failed to fetch user by username",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, UsernameResponse{UserID: userID})
}

// GET /api/users/:userId/status
func (srv *Server) HandleGetUserStatus(c echo.Context) error {
	userID := c.Param("userId")
	status, err := srv.platform.GetStatus(c.Request().Context(), userID)
	if err != nil {
		srv.logger.Error("failed to fetch user status", "userId", userID, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "Failed to fetch user status",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, status)
}

// GET /api/users/:userId/stats
func (srv *Server) HandleGetUserStats(c echo.Context) error {
	return c.JSON(http.StatusOK, srv.stats.Stats(c.Request().Context(), c.Param("userId")))
}

// GET /api/search-history?limit=N
func (srv *Server) HandleSearchHistory(c echo.Context) error {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = srv.historyLimit
	}
	entries, err := srv.store.RecentSearches(c.Request().Context(), limit)
	if err != nil {
		srv.logger.Error("failed to fetch search history", "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "Failed to fetch search history",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, entries)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("rolodex-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericError{Error: http.StatusText(code), Details: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "rolodex", Version: env.Version})
}

func (srv *Server) WebHome(c echo.Context) error {
	return c.String(http.StatusOK, `
                 __          __
   _____ ____   / /____  ___/ /___  _  __
  / ___// __ \ / // __ \/ __  // _ \| |/_/
 / /   / /_/ // // /_/ / /_/ //  __/>  <
/_/    \____//_/ \____/\__,_/ \___/_/|_|

This is a user profile lookup service for the platform API.

Endpoints:
  GET  /api/users/:userId
  GET  /api/users/:userId/status
  GET  /api/users/:userId/stats
  POST /api/users/by-username
  GET  /api/search-history?limit=N
`)
}
