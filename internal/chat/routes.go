// internal/chat/routes.go

package chat

import (
    "net/http"

    "github.com/gorilla/mux"
)

// RegisterRoutes registers the websocket endpoint and the chat REST API.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
    // WebSocket endpoint, requires authentication
    router.Handle("/ws", authMiddleware(http.HandlerFunc(handler.HandleWebSocket))).Methods("GET")

    api := router.PathPrefix("/api/v1/chat").Subrouter()
    api.Use(authMiddleware)

    // Message history
    api.HandleFunc("/messages/private/{userId:[0-9]+}", handler.GetPrivateHistory).Methods("GET")
    api.HandleFunc("/messages/group/{groupId:[0-9]+}", handler.GetGroupHistory).Methods("GET")

    // Message mutations
    api.HandleFunc("/messages/{id:[0-9]+}", handler.EditMessage).Methods("PUT", "PATCH")
    api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")

    // Reactions
    api.HandleFunc("/messages/{id:[0-9]+}/reactions", handler.AddReaction).Methods("POST")
    api.HandleFunc("/messages/{id:[0-9]+}/reactions/{emoji}", handler.RemoveReaction).Methods("DELETE")

    // Group lifecycle
    api.HandleFunc("/groups", handler.CreateGroup).Methods("POST")
    api.HandleFunc("/groups", handler.ListGroups).Methods("GET")
    api.HandleFunc("/groups/{id:[0-9]+}", handler.GetGroup).Methods("GET")
    api.HandleFunc("/groups/{id:[0-9]+}", handler.DeleteGroup).Methods("DELETE")
    api.HandleFunc("/groups/{id:[0-9]+}/members", handler.AddMember).Methods("POST")
    api.HandleFunc("/groups/{id:[0-9]+}/members/{userId:[0-9]+}", handler.RemoveMember).Methods("DELETE")
    api.HandleFunc("/groups/{id:[0-9]+}/quit", handler.QuitGroup).Methods("POST")

    // Roster and presence
    api.HandleFunc("/contacts", handler.ListContacts).Methods("GET")
    api.HandleFunc("/online-status", handler.GetOnlineStatus).Methods("GET")

    // Attachment upload
    api.HandleFunc("/upload", handler.UploadAttachment).Methods("POST")
}

// RegisterHealthCheck exposes the chat health endpoint.
func RegisterHealthCheck(router *mux.Router, handler *Handler) {
    router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
}
