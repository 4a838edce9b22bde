package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"crashd/internal/game"
)

// userID resolves the authenticated user for a request. Authentication
// itself lives upstream; the session middleware puts the resolved identity
// into the X-User-ID header and the game trusts it.
func userID(c *fiber.Ctx) string {
	return c.Get("X-User-ID")
}

// getStateHandler is the HTTP reconciliation path: a client that missed
// pushes asks for the authoritative snapshot instead of a tick replay.
func (s *FiberServer) getStateHandler(c *fiber.Ctx) error {
	snap, ok := s.scheduler.GetSnapshot(userID(c))
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(snap)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if uid := userID(c); uid != "" {
		req.UserID = uid
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	resp := s.scheduler.PlaceBet(req)
	if !resp.Success {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	var req game.CashOutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if uid := userID(c); uid != "" {
		req.UserID = uid
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	resp := s.scheduler.CashOut(req)
	if !resp.Success {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	items, err := s.history.History(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	return c.JSON(fiber.Map{"rounds": items})
}

// verifyHandler lets anyone recompute a revealed round: commitment check
// plus the crash-point derivation.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	serverSeed := c.Query("server_seed")
	clientSeed := c.Query("client_seed")
	seedHash := c.Query("server_seed_hash")
	nonce, err := strconv.ParseInt(c.Query("nonce"), 10, 64)
	if serverSeed == "" || clientSeed == "" || err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "server_seed, client_seed and nonce are required",
		})
	}

	result := fiber.Map{
		"crash_point": game.DeriveCrashPoint(serverSeed, clientSeed, nonce),
	}
	if seedHash != "" {
		result["commitment_valid"] = game.VerifyCommitment(serverSeed, seedHash)
	}
	if claimed := c.QueryFloat("crash_point", 0); claimed > 0 {
		result["crash_point_valid"] = game.VerifyCrashPoint(serverSeed, clientSeed, nonce, claimed)
	}
	return c.JSON(result)
}

func (s *FiberServer) pendingSettlementsHandler(c *fiber.Ctx) error {
	items, err := s.pending.List(c.Context(), int64(c.QueryInt("limit", 100)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load pending settlements",
		})
	}
	return c.JSON(fiber.Map{"pending": items})
}

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	uid := c.Params("userId")
	if uid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bal, err := s.balances.Get(c.Context(), uid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read balance",
		})
	}
	return c.JSON(fiber.Map{"user_id": uid, "balance": bal})
}

// setUserBalanceHandler exists for testing/admin; deposits proper live in
// the payments subsystem.
func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	uid := c.Params("userId")
	if uid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := s.balances.Set(c.Context(), uid, body.Balance); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to set balance",
		})
	}
	return c.JSON(fiber.Map{"user_id": uid, "balance": body.Balance})
}
