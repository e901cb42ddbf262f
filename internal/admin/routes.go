package admin

import (
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/utils"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/shopspring/decimal"
)

type adjustBody struct {
	BalanceDelta *decimal.Decimal `json:"balance_delta"`
	IsPremium    *bool            `json:"is_premium"`
	PremiumDays  int              `json:"premium_days"`
	Reason       string           `json:"reason"`
}

type premiumBody struct {
	Days int `json:"days"`
}

// Mount registers the admin API under /admin behind HTTP basic auth.
func Mount(app fiber.Router, svc *Service, user, pass string) {
	g := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{user: pass},
		Realm: "ledger-admin",
	}))

	g.Get("/accounts", func(c *fiber.Ctx) error {
		page, err := svc.ListAccounts(c.UserContext(), types.Page{
			Page:    c.QueryInt("page", 1),
			PerPage: c.QueryInt("per_page", 20),
		})
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, page)
	})

	g.Get("/accounts/:id", func(c *fiber.Ctx) error {
		detail, err := svc.Account(c.UserContext(), c.Params("id"))
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, detail)
	})

	g.Get("/accounts/:id/history", func(c *fiber.Ctx) error {
		events, err := svc.History(c.UserContext(), c.Params("id"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, events)
	})

	g.Post("/accounts/:id/adjust", func(c *fiber.Ctx) error {
		var body adjustBody
		if err := c.BodyParser(&body); err != nil {
			return utils.SendBadRequest(c, "invalid body")
		}
		if body.PremiumDays < 0 || body.PremiumDays > ledger.MaxPremiumDays {
			return utils.SendBadRequest(c, "premium_days out of range")
		}
		acc, err := svc.Adjust(c.UserContext(), ledger.AdjustRequest{
			AccountID:       c.Params("id"),
			Admin:           adminName(c),
			BalanceDelta:    body.BalanceDelta,
			Premium:         body.IsPremium,
			PremiumDuration: time.Duration(body.PremiumDays) * 24 * time.Hour,
			Reason:          strings.TrimSpace(body.Reason),
		})
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, acc)
	})

	g.Post("/accounts/:id/premium", func(c *fiber.Ctx) error {
		var body premiumBody
		if err := c.BodyParser(&body); err != nil {
			return utils.SendBadRequest(c, "invalid body")
		}
		if body.Days <= 0 || body.Days > ledger.MaxPremiumDays {
			return utils.SendBadRequest(c, "days out of range")
		}
		acc, err := svc.GrantPremium(c.UserContext(), c.Params("id"), time.Duration(body.Days)*24*time.Hour)
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, acc)
	})

	g.Get("/stats", func(c *fiber.Ctx) error {
		snap, err := svc.Snapshot(c.UserContext())
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, snap)
	})

	g.Post("/stats/reconcile", func(c *fiber.Ctx) error {
		snap, err := svc.Reconcile(c.UserContext())
		if err != nil {
			return utils.SendLedgerError(c, err)
		}
		return utils.SendSuccess(c, snap)
	})
}

func adminName(c *fiber.Ctx) string {
	if name, ok := c.Locals("username").(string); ok && name != "" {
		return name
	}
	return "admin"
}
