package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilot/postpilot/internal/service"
	"github.com/postpilot/postpilot/internal/transfer"
)

type RowHandler struct {
	s service.RowService
	d service.DispatchCoordinator
}

func NewRowHandler(rowService service.RowService, dispatch service.DispatchCoordinator) *RowHandler {
	return &RowHandler{s: rowService, d: dispatch}
}

// CreatePlan expands a strategy into draft rows.
func (h *RowHandler) CreatePlan(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PlanCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	rows, err := h.s.CreatePlan(c.Context(), userID, &pc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count": len(rows),
		"rows":  rows,
	})
}

// CreateRow creates one row by hand from a multipart form, with optional
// user-supplied media files.
func (h *RowHandler) CreateRow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	accountID, _ := strconv.ParseInt(c.FormValue("account_id"), 10, 64)
	carouselCount, _ := strconv.Atoi(c.FormValue("carousel_count"))

	rowID, err := h.s.CreateRow(c.Context(), userID, &transfer.RowCreation{
		AccountID:     accountID,
		PostType:      c.FormValue("post_type"),
		Caption:       c.FormValue("caption"),
		ImagePrompt:   c.FormValue("image_prompt"),
		CarouselCount: carouselCount,
		ScheduledDate: c.FormValue("scheduled_date"),
		ScheduledTime: c.FormValue("scheduled_time"),
	}, form.File["files"])

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"row_id": rowID,
	})
}

// Submit hands a batch of rows to the dispatch coordinator and returns the
// per-row outcomes.
func (h *RowHandler) Submit(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	batch, err := h.d.Submit(c.Context(), userID, req.RowIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(batch)
}

func (h *RowHandler) ListRows(c *fiber.Ctx) error {
	userID := GetUserID(c)
	rowID := c.Query("id")

	if rowID != "" {
		row, err := h.s.RowInfo(c.Context(), rowID, userID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get row",
			})
		}
		return c.Status(fiber.StatusOK).JSON(row)
	}

	rows, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list rows",
		})
	}

	return c.Status(fiber.StatusOK).JSON(rows)
}

func (h *RowHandler) CancelRow(c *fiber.Ctx) error {
	userID := GetUserID(c)
	rowID := c.Query("id")

	if err := h.s.Cancel(c.Context(), userID, rowID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *RowHandler) EditRow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var edit transfer.RowEdit
	if err := c.BodyParser(&edit); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.Edit(c.Context(), userID, &edit); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *RowHandler) RemoveRow(c *fiber.Ctx) error {
	userID := GetUserID(c)
	rowID := c.Query("id")

	if err := h.s.Remove(c.Context(), userID, rowID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove row",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
