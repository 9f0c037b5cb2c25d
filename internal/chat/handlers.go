// internal/chat/handlers.go

package chat

import (
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    "github.com/taskroom/taskroom-backend/internal/auth"
    "github.com/taskroom/taskroom-backend/internal/common/utils"
)

var upgrader = websocket.Upgrader{
    ReadBufferSize:  1024,
    WriteBufferSize: 1024,
    CheckOrigin: func(r *http.Request) bool {
        // Configure CORS as needed
        return true
    },
}

type Handler struct {
    service       Service
    hub           *Hub
    sessionCfg    SessionConfig
    maxUploadSize int64
}

func NewHandler(service Service, hub *Hub, sessionCfg SessionConfig, maxUploadSize int64) *Handler {
    if maxUploadSize <= 0 {
        maxUploadSize = 32 << 20
    }
    return &Handler{
        service:       service,
        hub:           hub,
        sessionCfg:    sessionCfg,
        maxUploadSize: maxUploadSize,
    }
}

// HandleWebSocket upgrades the connection and hands it to the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
    userID, ok := auth.GetUserIDFromContext(r.Context())
    if !ok {
        http.Error(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
        return
    }

    session := NewSession(h.hub, conn, userID, h.service, h.sessionCfg)
    h.hub.register <- session
    session.Start()
}

// GetPrivateHistory returns the message history with another user.
func (h *Handler) GetPrivateHistory(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    otherID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
        return
    }

    messages, err := h.service.PrivateHistory(r.Context(), userID, otherID, pageFromQuery(r))
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, messages, http.StatusOK)
}

// GetGroupHistory returns the message history of a group the caller
// belongs to.
func (h *Handler) GetGroupHistory(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groupID, err := strconv.ParseInt(mux.Vars(r)["groupId"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }

    messages, err := h.service.GroupHistory(r.Context(), userID, groupID, pageFromQuery(r))
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, messages, http.StatusOK)
}

func pageFromQuery(r *http.Request) Page {
    limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
    before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
    return Page{Limit: limit, Before: before}
}

// EditMessage replaces the text of a message the caller sent.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
        return
    }

    var req EditMessageRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
        return
    }

    msg, err := h.service.EditMessage(r.Context(), messageID, userID, req.Content)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, msg, http.StatusOK)
}

// DeleteMessage soft-deletes a message the caller sent.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
        return
    }

    if err := h.service.DeleteMessage(r.Context(), messageID, userID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Message deleted", http.StatusOK)
}

// AddReaction records an emoji reaction on a message.
func (h *Handler) AddReaction(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
        return
    }

    var req AddReactionRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(&req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    reaction, err := h.service.AddReaction(r.Context(), messageID, userID, req.Emoji)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, reaction, http.StatusCreated)
}

// RemoveReaction removes the caller's reaction from a message.
func (h *Handler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())
    vars := mux.Vars(r)

    messageID, err := strconv.ParseInt(vars["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
        return
    }

    if err := h.service.RemoveReaction(r.Context(), messageID, userID, vars["emoji"]); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Reaction removed", http.StatusOK)
}

// CreateGroup creates a group chat with the caller as creator.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    var req CreateGroupRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
        return
    }

    group, err := h.service.CreateGroup(r.Context(), userID, &req)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, group, http.StatusCreated)
}

// ListGroups lists the groups the caller belongs to.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groups, err := h.service.ListGroups(r.Context(), userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, groups, http.StatusOK)
}

// GetGroup returns a single group with its member list.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }

    if err := h.service.CheckMembership(r.Context(), groupID, userID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    group, err := h.service.GetGroup(r.Context(), groupID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, group, http.StatusOK)
}

// AddMember adds a user to a group. Creator only.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }

    var req AddMemberRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(&req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    if err := h.service.AddMember(r.Context(), userID, groupID, req.UserID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Member added", http.StatusOK)
}

// RemoveMember removes a user from a group. Creator only.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())
    vars := mux.Vars(r)

    groupID, err := strconv.ParseInt(vars["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }
    memberID, err := strconv.ParseInt(vars["userId"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
        return
    }

    if err := h.service.RemoveMember(r.Context(), userID, groupID, memberID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Member removed", http.StatusOK)
}

// QuitGroup removes the caller from a group they did not create.
func (h *Handler) QuitGroup(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }

    if err := h.service.QuitGroup(r.Context(), userID, groupID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Left group", http.StatusOK)
}

// DeleteGroup deletes a group and evicts its live room. Creator only.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    groupID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
    if err != nil {
        utils.ErrorResponse(w, "Invalid group ID", http.StatusBadRequest)
        return
    }

    if err := h.service.DeleteGroup(r.Context(), userID, groupID); err != nil {
        h.writeServiceError(w, err)
        return
    }

    h.hub.EvictGroupRoom(groupID)

    utils.MessageResponse(w, "Group deleted", http.StatusOK)
}

// ListContacts returns the users the caller has conversed with.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    contacts, err := h.service.ListContacts(r.Context(), userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, contacts, http.StatusOK)
}

// GetOnlineStatus returns the presence of the caller's contacts.
func (h *Handler) GetOnlineStatus(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    status, err := h.service.ContactsOnline(r.Context(), userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, status, http.StatusOK)
}

// UploadAttachment handles multipart attachment uploads and returns the
// URL to reference from a later message.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
    userID, _ := auth.GetUserIDFromContext(r.Context())

    r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
    if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
        utils.ErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
        return
    }

    file, header, err := r.FormFile("file")
    if err != nil {
        utils.ErrorResponse(w, "Missing file", http.StatusBadRequest)
        return
    }
    defer file.Close()

    contentType := header.Header.Get("Content-Type")
    if contentType == "" {
        contentType = "application/octet-stream"
    }

    url, err := h.service.UploadAttachment(r.Context(), userID, file, header.Filename, contentType)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, map[string]string{"url": url}, http.StatusCreated)
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
    utils.SuccessResponse(w, map[string]interface{}{
        "status":      "healthy",
        "connections": h.hub.Rooms().SessionCount(),
    }, http.StatusOK)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, ErrNotFound), errors.Is(err, ErrGroupNotFound):
        utils.ErrorResponse(w, err.Error(), http.StatusNotFound)
    case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember),
        errors.Is(err, ErrOnlyCreator), errors.Is(err, ErrCreatorCannotQuit):
        utils.ErrorResponse(w, err.Error(), http.StatusForbidden)
    case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrEmptyPayload):
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
    default:
        log.Printf("chat handler error: %v", err)
        utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
    }
}
