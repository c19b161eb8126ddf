package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kham-river/water-quality-monitor/internal/blog"
)

func (h *handlers) articles(c *fiber.Ctx) error {
	return ok(c, blog.Articles(c.Query("category", blog.AllCategories)))
}

func (h *handlers) solutions(c *fiber.Ctx) error {
	table := h.svc.Standards()
	if name := c.Query("parameter"); name != "" {
		if _, sol, found := blog.SolutionFor(table, name); found {
			return ok(c, sol)
		}
	}
	return ok(c, blog.Solutions(table))
}

func (h *handlers) newsItems(c *fiber.Ctx) error {
	if h.news == nil {
		return ok(c, []blog.NewsItem{})
	}
	return ok(c, h.news.News(c.UserContext()))
}
