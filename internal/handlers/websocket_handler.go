package handlers

import (
	"net/http"
	"strconv"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
	"whatsapp-router/internal/services"
	"whatsapp-router/internal/utils"
	"whatsapp-router/internal/wsnotify"
)

// WebSocketHandler attaches operator sessions to the notification hub.
type WebSocketHandler struct {
	hub      *wsnotify.Hub
	admins   models.AdminRepository
	resolver *services.AssignmentResolver
}

func NewWebSocketHandler(hub *wsnotify.Hub, admins models.AdminRepository, resolver *services.AssignmentResolver) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, admins: admins, resolver: resolver}
}

// SessionFilter lets message-level events through only when the operator
// may access the conversation. Support events go to the operator named on
// them, or to everyone when nobody is.
func SessionFilter(resolver *services.AssignmentResolver, admin *models.Admin) wsnotify.Filter {
	return func(event notifier.Event) bool {
		if event.Conversation != nil {
			return resolver.IsAuthorized(admin, event.Conversation)
		}
		return admin.AllDepartments || event.AdminRef == nil || *event.AdminRef == admin.ID
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	adminID, err := strconv.Atoi(r.URL.Query().Get("adminId"))
	if err != nil || adminID <= 0 {
		respondBadRequest(w, "/ws", "adminId é obrigatório")
		return
	}
	admin, err := h.admins.GetByID(r.Context(), adminID)
	if err != nil {
		utils.LogError("Erro ao buscar admin %d em /ws: %v", adminID, err)
		models.RespondWithJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Erro ao buscar atendente"))
		return
	}
	if admin == nil {
		models.RespondWithJSON(w, http.StatusForbidden,
			models.NewCodedErrorResponse(string(services.ErrorCodePermissionDenied), "Atendente não encontrado"))
		return
	}

	conn, err := wsnotify.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		utils.LogWarning("Erro ao abrir websocket para admin %d: %v", adminID, err)
		return
	}
	h.hub.AddClient(conn, admin.ID, SessionFilter(h.resolver, admin))
	defer func() {
		h.hub.RemoveClient(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
