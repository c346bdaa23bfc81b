package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter mounts the API under /api/v1. metrics may be nil.
func NewRouter(h *HTTPHandler, ws *WebSocketHandler, metrics *HTTPMetrics) *mux.Router {
	root := mux.NewRouter()
	if metrics != nil {
		root.Use(metrics.Instrument)
	}
	router := root.PathPrefix("/api/v1").Subrouter()

	// Eventos do provedor
	router.HandleFunc("/webhook/inbound", h.ReceiveInbound).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/webhook/receipts", h.ReceiveReceipt).Methods(http.MethodPost, http.MethodOptions)

	// Conversas
	router.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/conversations/{id}", h.GetConversation).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/conversations/{id}/messages", h.SendMessage).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/conversations/{id}/assign", h.AssignAdmin).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/conversations/{id}/end", h.EndConversation).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/conversations/{id}/resend-menu", h.ResendMenu).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/conversations/{id}/health", h.ConversationHealth).Methods(http.MethodGet, http.MethodOptions)

	// Saúde de entrega
	router.HandleFunc("/health/deliveries", h.DeliveryHealth).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/health/fleet", h.FleetHealth).Methods(http.MethodGet, http.MethodOptions)

	router.HandleFunc("/phone/variants", h.PhoneVariants).Methods(http.MethodGet, http.MethodOptions)

	// Suporte
	router.HandleFunc("/support/messages", h.SendSupportMessage).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/support/messages", h.ListSupportMessages).Methods(http.MethodGet)
	router.HandleFunc("/support/messages/read", h.MarkSupportRead).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/support/upload", h.UploadSupportAttachment).Methods(http.MethodPost, http.MethodOptions)

	// Rotas de autenticação e status
	router.HandleFunc("/qrcode-base64", h.GetQRCodeBase64).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet, http.MethodOptions)

	if ws != nil {
		router.Handle("/ws", ws)
	}

	router.PathPrefix("/swagger-ui/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/api/v1/swagger-ui/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	return root
}
