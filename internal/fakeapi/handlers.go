package fakeapi

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mmynk/rngenius/internal/middleware"
	"github.com/mmynk/rngenius/internal/models"
)

const (
	maxTitleLength      = 20
	maxOptionNameLength = 20
)

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// --- auth ---

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	greeting := s.greeting
	s.mu.Unlock()
	respond(w, models.Greeting{Message: greeting}, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}

	switch {
	case strings.TrimSpace(req.FirstName) == "":
		respond(w, nil, badRequest("firstName", "First name is required"))
		return
	case strings.TrimSpace(req.LastName) == "":
		respond(w, nil, badRequest("lastName", "Last name is required"))
		return
	case strings.TrimSpace(req.Email) == "":
		respond(w, nil, badRequest("email", "Email is required"))
		return
	case req.Password == "":
		respond(w, nil, badRequest("password", "Password is required"))
		return
	}

	user, err := s.AddUser(req.Email, req.FirstName, req.LastName, req.Password)
	if errors.Is(err, ErrEmailExists) {
		respond(w, nil, badRequest("user", "User with this email already exists"))
		return
	}
	if err != nil {
		respond(w, nil, err)
		return
	}
	slog.Info("User registered", "user_id", user.ID, "email", user.Email)
	respond(w, nil, nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userByEmail(req.Email); !ok {
		writeError(w, http.StatusUnauthorized, "credentials", "User with e-mail "+req.Email+" not found!")
		return
	}
	u, err := s.authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "credentials", "Incorrect password for user with the e-mail "+req.Email+"!")
		return
	}

	refreshToken, err := s.rotateRefreshToken(u)
	if err != nil {
		respond(w, nil, err)
		return
	}
	accessToken, err := s.tokens.Generate(u.ID, u.Email)
	if err != nil {
		respond(w, nil, err)
		return
	}

	respond(w, models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
	}, nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
		AccessToken  string `json:"accessToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}

	userID, err := s.tokens.Requester(req.AccessToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "refreshToken", "Invalid refresh token!")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.checkRefreshToken(userID, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "refreshToken", "Invalid refresh token!")
		return
	}
	accessToken, err := s.tokens.Generate(u.ID, u.Email)
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, models.TokenPair{AccessToken: accessToken, RefreshToken: req.RefreshToken}, nil)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	if req.NewPassword == "" {
		respond(w, nil, badRequest("newPassword", "New password is required"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[middleware.GetUserID(r.Context())]
	if !ok {
		respond(w, nil, badRequest("user", "No user with this id"))
		return
	}
	if _, err := s.authenticate(u.Email, req.OldPassword); err != nil {
		respond(w, nil, badRequest("user", "Invalid password"))
		return
	}
	hash, err := hashSecret(req.NewPassword)
	if err != nil {
		respond(w, nil, err)
		return
	}
	u.PasswordHash = hash
	respond(w, nil, nil)
}

func (s *Server) handleLogoutAllDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[middleware.GetUserID(r.Context())]
	if !ok {
		respond(w, nil, badRequest("user", "No user with this id"))
		return
	}
	_, err := s.rotateRefreshToken(u)
	respond(w, nil, err)
}

// --- generators ---

// memberGenerator returns the generator if the user participates in it.
func (s *Server) memberGenerator(userID, generatorID int64) (*generatorRecord, error) {
	g, ok := s.generators[generatorID]
	if !ok {
		return nil, badRequest("generator", "No generator with this id")
	}
	if g.participant(userID) == nil {
		return nil, forbidden("generator", "You are not authorized to access this generator")
	}
	return g, nil
}

// ownedGenerator returns the generator if the user owns it.
func (s *Server) ownedGenerator(userID, generatorID int64) (*generatorRecord, error) {
	g, err := s.memberGenerator(userID, generatorID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != userID {
		return nil, forbidden("generator", "Only the owner can change this generator")
	}
	return g, nil
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return badRequest("title", "Title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return badRequest("title", "Title must be at most 20 characters")
	}
	return nil
}

func (s *Server) handleMyGenerators(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respond(w, s.generatorsFor(middleware.GetUserID(r.Context())), nil)
}

func (s *Server) handleMyResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respond(w, s.resultsFor(middleware.GetUserID(r.Context())), nil)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.memberGenerator(userID, pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	if len(g.Options) == 0 {
		respond(w, nil, badRequest("generator", "No options available"))
		return
	}
	o := s.pickOption(g)
	if o == nil {
		respond(w, nil, badRequest("generator", "Every option is excluded"))
		return
	}

	option := o.model()
	s.results = append(s.results, resultRecord{
		ID:          s.newID(),
		At:          s.clock.Now().UTC(),
		Option:      option,
		UserID:      userID,
		GeneratorID: g.ID,
	})
	respond(w, option, nil)
}

func (s *Server) handleAddGenerator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		IconNumber int    `json:"iconNumber"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	if err := validateTitle(req.Title); err != nil {
		respond(w, nil, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addGeneratorLocked(middleware.GetUserID(r.Context()), strings.TrimSpace(req.Title), req.IconNumber)
	respond(w, nil, nil)
}

func (s *Server) addGeneratorLocked(ownerID int64, title string, icon int) *generatorRecord {
	g := &generatorRecord{
		ID:         s.newID(),
		Title:      title,
		IconNumber: icon,
		OwnerID:    ownerID,
	}
	s.generators[g.ID] = g
	s.newParticipant(g, ownerID)
	return g
}

func (s *Server) handleUpdateGenerator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		IconNumber int    `json:"iconNumber"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	if err := validateTitle(req.Title); err != nil {
		respond(w, nil, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGenerator(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	g.Title = strings.TrimSpace(req.Title)
	g.IconNumber = req.IconNumber
	respond(w, nil, nil)
}

func (s *Server) handleDeleteGenerator(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGenerator(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	delete(s.generators, g.ID)
	respond(w, nil, nil)
}

func (s *Server) handleAddOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Categories  []string `json:"categories"`
		Description string   `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		respond(w, nil, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	var categories []string
	for _, c := range req.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	switch {
	case name == "":
		respond(w, nil, badRequest("name", "Name is required"))
		return
	case len([]rune(name)) > maxOptionNameLength:
		respond(w, nil, badRequest("name", "Name must be at most 20 characters"))
		return
	case len(categories) == 0:
		respond(w, nil, badRequest("categories", "At least one category is required"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGenerator(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	s.addOptionLocked(g, name, strings.TrimSpace(req.Description), categories)
	respond(w, nil, nil)
}

// ownedOption returns an option of a generator the user owns.
func (s *Server) ownedOption(userID, optionID int64) (*generatorRecord, *optionRecord, error) {
	g, o := s.optionOwner(optionID)
	if o == nil {
		return nil, nil, badRequest("option", "No option with this id")
	}
	if g.OwnerID != userID {
		return nil, nil, forbidden("option", "You are not authorized to delete this option")
	}
	return g, o, nil
}

func (s *Server) handleDeleteOption(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	s.mu.Lock()
	defer s.mu.Unlock()

	g, o, err := s.ownedOption(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	o.Categories = slices.DeleteFunc(slices.Clone(o.Categories), func(c string) bool { return c == category })
	if len(o.Categories) == 0 {
		s.removeOptionLocked(g, o.ID)
	}
	respond(w, nil, nil)
}

func (s *Server) handlePurgeOption(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, o, err := s.ownedOption(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	s.removeOptionLocked(g, o.ID)
	respond(w, nil, nil)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGenerator(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	u, ok := s.userByEmail(email)
	if !ok {
		respond(w, nil, badRequest("email", "No user with this email"))
		return
	}
	if g.participant(u.ID) != nil {
		respond(w, nil, badRequest("email", "User is already a participant"))
		return
	}
	s.newParticipant(g, u.ID)
	respond(w, nil, nil)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("participantId"), 10, 64)
	if err != nil {
		respond(w, nil, badRequest("participantId", "Invalid participant id"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.ownedGenerator(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	if userID == g.OwnerID {
		respond(w, nil, badRequest("participant", "The owner cannot be removed"))
		return
	}
	if g.participant(userID) == nil {
		respond(w, nil, badRequest("participant", "No participant with this id"))
		return
	}
	s.dropParticipantLocked(g, userID)
	respond(w, nil, nil)
}

func (s *Server) dropParticipantLocked(g *generatorRecord, userID int64) {
	kept := g.Participants[:0]
	for _, p := range g.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	g.Participants = kept
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.memberGenerator(userID, pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	if g.OwnerID == userID {
		respond(w, nil, badRequest("generator", "The owner cannot leave, delete the generator instead"))
		return
	}
	s.dropParticipantLocked(g, userID)
	respond(w, nil, nil)
}

// selectionFor returns the user's selection on an option.
func (s *Server) selectionFor(userID, optionID int64) (*selectionRecord, error) {
	g, o := s.optionOwner(optionID)
	if o == nil {
		return nil, badRequest("option", "No option with this id")
	}
	p := g.participant(userID)
	if p == nil {
		return nil, forbidden("option", "You are not a participant of this generator")
	}
	sel, ok := p.Selections[optionID]
	if !ok {
		sel = &selectionRecord{ID: s.newID()}
		p.Selections[optionID] = sel
	}
	return sel, nil
}

func (s *Server) handleExclude(w http.ResponseWriter, r *http.Request) {
	s.toggleSelection(w, r, func(sel *selectionRecord) { sel.Excluded = !sel.Excluded })
}

func (s *Server) handleFavorise(w http.ResponseWriter, r *http.Request) {
	s.toggleSelection(w, r, func(sel *selectionRecord) { sel.Favorised = !sel.Favorised })
}

func (s *Server) toggleSelection(w http.ResponseWriter, r *http.Request, toggle func(*selectionRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, err := s.selectionFor(middleware.GetUserID(r.Context()), pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	toggle(sel)
	respond(w, nil, nil)
}

func (s *Server) handleExcludeCategory(w http.ResponseWriter, r *http.Request) {
	s.setCategory(w, r,
		func(sel *selectionRecord) bool { return sel.Excluded },
		func(sel *selectionRecord, v bool) { sel.Excluded = v },
	)
}

func (s *Server) handleFavoriseCategory(w http.ResponseWriter, r *http.Request) {
	s.setCategory(w, r,
		func(sel *selectionRecord) bool { return sel.Favorised },
		func(sel *selectionRecord, v bool) { sel.Favorised = v },
	)
}

// setCategory sets a flag on every selection of the user in the category:
// on unless all of them already carry it.
func (s *Server) setCategory(w http.ResponseWriter, r *http.Request, get func(*selectionRecord) bool, set func(*selectionRecord, bool)) {
	userID := middleware.GetUserID(r.Context())
	category := r.URL.Query().Get("category")

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.memberGenerator(userID, pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	p := g.participant(userID)

	var selections []*selectionRecord
	for _, o := range g.Options {
		if !slices.Contains(o.Categories, category) {
			continue
		}
		sel, ok := p.Selections[o.ID]
		if !ok {
			sel = &selectionRecord{ID: s.newID()}
			p.Selections[o.ID] = sel
		}
		selections = append(selections, sel)
	}
	if len(selections) == 0 {
		respond(w, nil, badRequest("category", "No options in this category"))
		return
	}

	all := true
	for _, sel := range selections {
		if !get(sel) {
			all = false
			break
		}
	}
	for _, sel := range selections {
		set(sel, !all)
	}
	respond(w, nil, nil)
}

func (s *Server) handleToggleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.memberGenerator(userID, pathID(r))
	if err != nil {
		respond(w, nil, err)
		return
	}
	p := g.participant(userID)
	p.Notifications = !p.Notifications
	respond(w, nil, nil)
}
