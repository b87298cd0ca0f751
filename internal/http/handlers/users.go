package handlers

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/mail"
)

type userRequest struct {
	SalesID       uint   `json:"sales_id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Avatar        string `json:"avatar"`
	Administrator *bool  `json:"administrator"`
	Disabled      *bool  `json:"disabled"`
}

// InviteUser handles POST /users: admin-only account creation. The new
// sale is created disabled=false/non-admin first and the requested
// flags applied afterwards, mirroring the two-step flow of the
// original invite. The invite email is best-effort; with no mailer
// configured the admin directs the user to the passwordless login.
func InviteUser(db *gorm.DB, mailer mail.Mailer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		current, ok := httpctx.SaleFromCtx(ctx)
		if !ok {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
			return
		}
		if !current.Administrator {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Not Authorized")
			return
		}

		var req userRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" {
			WriteError(ctx, fasthttp.StatusBadRequest, "email is required")
			return
		}

		sale := dbpkg.Sale{
			UserID:    uuid.NewString(),
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		}
		if err := db.Create(&sale).Error; err != nil {
			log.Printf("invite error for %s: %v", req.Email, err)
			WriteError(ctx, fasthttp.StatusInternalServerError, "Failed to invite user: "+err.Error())
			return
		}

		updates := map[string]any{}
		if req.Disabled != nil {
			updates["disabled"] = *req.Disabled
		}
		if req.Administrator != nil {
			updates["administrator"] = *req.Administrator
		}
		if len(updates) > 0 {
			if err := db.Model(&sale).Updates(updates).Error; err != nil {
				WriteError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
				return
			}
		}

		if mailer != nil {
			if err := mailer.SendInvite(ctx, sale.Email, sale.FirstName); err != nil {
				log.Printf("invite email error for %s: %v", sale.Email, err)
			}
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": sale})
	}
}

// PatchUser handles PATCH /users: profile updates for self or, for
// administrators, any sale. Only administrators may change the
// administrator and disabled flags.
func PatchUser(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		current, ok := httpctx.SaleFromCtx(ctx)
		if !ok {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
			return
		}

		var req userRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
			return
		}

		var sale dbpkg.Sale
		if err := db.First(&sale, req.SalesID).Error; err != nil {
			WriteError(ctx, fasthttp.StatusNotFound, "Not Found")
			return
		}

		if !current.Administrator && current.ID != sale.ID {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Not Authorized")
			return
		}

		updates := map[string]any{}
		if req.Email != "" {
			updates["email"] = req.Email
		}
		if req.FirstName != "" {
			updates["first_name"] = req.FirstName
		}
		if req.LastName != "" {
			updates["last_name"] = req.LastName
		}
		if req.Avatar != "" {
			updates["avatar"] = req.Avatar
		}
		if current.Administrator {
			if req.Administrator != nil {
				updates["administrator"] = *req.Administrator
			}
			if req.Disabled != nil {
				updates["disabled"] = *req.Disabled
			}
		}

		if len(updates) > 0 {
			if err := db.Model(&sale).Updates(updates).Error; err != nil {
				log.Printf("patch user error for sale %d: %v", sale.ID, err)
				WriteError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
				return
			}
		}

		if err := db.First(&sale, sale.ID).Error; err != nil {
			WriteError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
			return
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": sale})
	}
}

// ResendInvite handles PUT /users: admin-only. Under the passwordless
// auth model no email is sent here; the target sale is returned so the
// admin can direct the user to the email-code login.
func ResendInvite(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		current, ok := httpctx.SaleFromCtx(ctx)
		if !ok {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
			return
		}
		if !current.Administrator {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Not Authorized")
			return
		}

		var req userRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
			return
		}

		var sale dbpkg.Sale
		if err := db.First(&sale, req.SalesID).Error; err != nil {
			WriteError(ctx, fasthttp.StatusNotFound, "User not found")
			return
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": sale})
	}
}

// MethodNotAllowed answers unsupported verbs on /users.
func MethodNotAllowed(ctx *fasthttp.RequestCtx) {
	WriteError(ctx, fasthttp.StatusMethodNotAllowed, "Method Not Allowed")
}
