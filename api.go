package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

var allowedImageTypes = []string{"image/jpeg", "image/png"}

type APIServer struct {
	svc          *Service
	listenAddr   string
	secret       []byte
	maxImageSize int64
	denylist     *TokenDenylist
}

func NewAPIServer(svc *Service, listenAddr string, secret []byte, maxImageSize int64) *APIServer {
	return &APIServer{
		svc:          svc,
		listenAddr:   listenAddr,
		secret:       secret,
		maxImageSize: maxImageSize,
		denylist:     NewTokenDenylist(),
	}
}

type APIFunc func(w http.ResponseWriter, r *http.Request) error

func makeHandler(f APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}

		statusError := toStatusError(err)
		if statusError.Status >= http.StatusInternalServerError {
			slog.Error("Writing an error to response", "error", err, "path", r.URL.Path)
		} else {
			slog.Debug("Writing API Status Error to response", "status_error", statusError, "path", r.URL.Path)
		}

		if statusError.Err != nil {
			w.Header().Set("Content-Type", "application/json; charset=UTF-8")
			w.WriteHeader(statusError.Status)
			json.NewEncoder(w).Encode(statusError)
		} else {
			http.Error(w, http.StatusText(statusError.Status), statusError.Status)
		}
	}
}

func (s *APIServer) routes() *http.ServeMux {
	r := http.NewServeMux()

	r.HandleFunc("/login", makeHandler(s.HandleLogin))
	r.HandleFunc("/logout", makeHandler(s.authMiddleware(s.HandleLogout)))
	r.HandleFunc("/session", makeHandler(s.authMiddleware(s.HandleSession)))
	r.HandleFunc("/photos", makeHandler(s.authMiddleware(s.HandlePhotos)))
	r.HandleFunc("/image", makeHandler(s.authMiddleware(s.HandleImage)))
	r.HandleFunc("/rankings", makeHandler(s.authMiddleware(s.HandleRankings)))
	r.HandleFunc("/users", makeHandler(s.authMiddleware(s.HandleUsers)))
	r.HandleFunc("/export", makeHandler(s.authMiddleware(s.HandleExport)))

	return r
}

func (s *APIServer) Run() error {
	srv := http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}

	slog.Info("Starting the server", "listen_addr", s.listenAddr)

	return srv.ListenAndServe()
}

type HandleLoginRequest struct {
	Name string `json:"name"`
}

type HandleLoginResponse struct {
	Token  string `json:"token"`
	User   string `json:"user"`
	IsHost bool   `json:"is_host"`
}

type SessionResponse struct {
	User   string `json:"user"`
	IsHost bool   `json:"is_host"`
}

func (s *APIServer) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	var req HandleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}

	session, err := s.svc.Login(r.Context(), name)
	if err != nil {
		return err
	}

	token, err := NewSessionToken(session, s.secret)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token.Access,
		Path:     "/",
		MaxAge:   int(SessionTokenExpirationTime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return writeJSON(w, HandleLoginResponse{
		Token:  token.Access,
		User:   session.CurrentUser,
		IsHost: session.IsHost(),
	})
}

func (s *APIServer) HandleLogout(session Session, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	if claims, ok := parseSessionToken(requestToken(r), s.secret); ok && claims.ExpiresAt != nil {
		s.denylist.Revoke(claims.ID, claims.ExpiresAt.Time)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	session = Logout(session)

	return writeJSON(w, SessionResponse{User: session.CurrentUser, IsHost: session.IsHost()})
}

func (s *APIServer) HandleSession(session Session, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	return writeJSON(w, SessionResponse{User: session.CurrentUser, IsHost: session.IsHost()})
}

type HandleGalleryResponse struct {
	TotalPhotos int           `json:"total_photos"`
	Photos      []GalleryItem `json:"photos"`
}

type HandleUploadPhotoResponse struct {
	Photo Photo  `json:"photo"`
	URL   string `json:"url"`
}

func (s *APIServer) HandlePhotos(session Session, w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet:
		items, err := s.svc.Gallery(r.Context(), session.CurrentUser)
		if err != nil {
			return err
		}
		return writeJSON(w, HandleGalleryResponse{TotalPhotos: len(items), Photos: items})
	case http.MethodPost:
		return s.handleUploadPhoto(session, w, r)
	case http.MethodDelete:
		if err := requireHost(session); err != nil {
			return err
		}
		filename := r.URL.Query().Get("filename")
		if err := s.svc.DeletePhoto(r.Context(), filename); err != nil {
			return err
		}
		return writeJSON(w, map[string]string{"status": "success"})
	default:
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}
}

func (s *APIServer) handleUploadPhoto(session Session, w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize)
	if err := r.ParseMultipartForm(s.maxImageSize); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return &StatusError{Err: err, Status: http.StatusRequestEntityTooLarge}
		}
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	formFile, handler, err := r.FormFile("image")
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}
	defer formFile.Close()

	slog.Debug("Received an image",
		"filename", handler.Filename,
		"size", handler.Size,
		"user", session.CurrentUser,
	)

	data, err := io.ReadAll(formFile)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	}

	if err := checkImageType(data); err != nil {
		return err
	}

	tags, ok := r.MultipartForm.Value["tags"]
	if !ok {
		tags = []string{session.CurrentUser}
	}

	photo, err := s.svc.Upload(r.Context(), session.CurrentUser, splitTagValues(tags), data)
	if err != nil {
		return err
	}

	return writeJSON(w, HandleUploadPhotoResponse{
		Photo: photo,
		URL:   "/image?filename=" + photo.Filename,
	})
}

func (s *APIServer) HandleImage(_ Session, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	filename := r.URL.Query().Get("filename")

	f, err := s.svc.OpenImage(r.Context(), filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", attachment(filename))

	_, err = io.Copy(w, f)

	return err
}

func (s *APIServer) HandleRankings(_ Session, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	rankings, err := s.svc.Rankings(r.Context())
	if err != nil {
		return err
	}

	return writeJSON(w, rankings)
}

type HandleUsersResponse struct {
	Users []User `json:"users"`
}

func (s *APIServer) HandleUsers(session Session, w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet:
		users, err := s.svc.ListUsers(r.Context())
		if err != nil {
			return err
		}
		if users == nil {
			users = []User{}
		}
		return writeJSON(w, HandleUsersResponse{Users: users})
	case http.MethodDelete:
		if err := requireHost(session); err != nil {
			return err
		}
		if err := s.svc.DeleteUser(r.Context(), r.URL.Query().Get("name")); err != nil {
			return err
		}
		return writeJSON(w, map[string]string{"status": "success"})
	default:
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}
}

func (s *APIServer) HandleExport(_ Session, w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return &StatusError{Err: nil, Status: http.StatusMethodNotAllowed}
	}

	archive, err := s.svc.NewArchive(r.Context())
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(ArchiveFilename))

	// The status line is already sent, so a failure can only cut the body short.
	if err := archive.WriteTo(r.Context(), w); err != nil {
		slog.Error("Streaming the image archive failed", "error", err)
	}

	return nil
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	return json.NewEncoder(w).Encode(v)
}

type APIAuthFunc func(session Session, w http.ResponseWriter, r *http.Request) error

// authMiddleware reads the session from a bearer token, falling back to the
// session cookie. Tokens revoked by /logout are rejected.
func (s *APIServer) authMiddleware(f APIAuthFunc) APIFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		token := requestToken(r)
		if token == "" {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		claims, ok := parseSessionToken(token, s.secret)
		if !ok || s.denylist.IsRevoked(claims.ID) {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		return f(Session{CurrentUser: claims.Subject}, w, r)
	}
}

func requestToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}

	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}

	return ""
}

func bearerToken(r *http.Request) string {
	header := strings.Split(r.Header.Get("Authorization"), " ")
	if len(header) != 2 || !strings.EqualFold(header[0], "Bearer") {
		return ""
	}

	return header[1]
}

func requireHost(session Session) error {
	if !session.IsHost() {
		return &StatusError{Err: ErrForbidden, Status: http.StatusForbidden}
	}

	return nil
}

func checkImageType(data []byte) error {
	contentType := http.DetectContentType(data)
	for _, t := range allowedImageTypes {
		if contentType == t {
			return nil
		}
	}

	return fmt.Errorf("%w: unsupported image type %s", ErrValidation, contentType)
}

// splitTagValues accepts tags sent as repeated form values or as one
// comma-separated value.
func splitTagValues(values []string) []string {
	var tags []string
	for _, v := range values {
		tags = append(tags, SplitTags(v)...)
	}

	return tags
}
