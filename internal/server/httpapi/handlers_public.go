package httpapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/server/models"
	"github.com/goldflix/goldflix/internal/server/streamtoken"
)

const pageSize = 20

func (s *Server) handleLatest(c *gin.Context) {
	n := pageSize
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}
	movies, err := s.catalog.Latest(c.Request.Context(), n)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movies": movies})
}

func (s *Server) handleList(c *gin.Context) {
	cat := c.Query("cat")
	if !models.ValidCategory(cat) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}

	page := 1
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}

	// pagination over the category index is cursorless: fetch page*size
	// newest entries and slice off the tail page
	movies, err := s.catalog.ByCategory(c.Request.Context(), cat, page*pageSize)
	if err != nil {
		s.abortError(c, err)
		return
	}
	if offset := (page - 1) * pageSize; offset < len(movies) {
		movies = movies[offset:]
	} else {
		movies = nil
	}

	total, err := s.catalog.CategoryCount(c.Request.Context(), cat)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"movies": movies,
		"total":  total,
		"page":   page,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	movies, err := s.search.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.abortError(c, err)
		return
	}
	results := make([]models.MovieSummary, 0, len(movies))
	for i := range movies {
		results = append(results, movies[i].Summary())
	}
	c.JSON(http.StatusOK, gin.H{"movies": results})
}

// movieResponse is the detail payload. Raw upstream URLs never leave the
// server; entitled viewers get tokenized /stream and /dl paths instead.
type movieResponse struct {
	Movie        *models.Movie `json:"movie"`
	Entitled     bool          `json:"entitled"`
	Favorite     bool          `json:"favorite"`
	PlayerURL    string        `json:"playerUrl,omitempty"`
	PlayerURL2   string        `json:"playerUrl2,omitempty"`
	DownloadURL  string        `json:"downloadUrl,omitempty"`
	DownloadURL2 string        `json:"downloadUrl2,omitempty"`
}

func (s *Server) handleMovie(c *gin.Context) {
	ctx := c.Request.Context()
	movie, err := s.catalog.Get(ctx, c.Param("id"))
	if err != nil {
		s.abortError(c, err)
		return
	}

	appcfg, err := s.appcfg.Get(ctx)
	if err != nil {
		s.abortError(c, err)
		return
	}

	user := s.currentUser(c)
	resp := movieResponse{Movie: movie}
	if user != nil {
		resp.Favorite = user.HasFavorite(movie.ID)
		if movie.Price > 0 {
			resp.Entitled = user.Owns(movie.ID)
		} else {
			resp.Entitled = s.accounts.IsPremium(user, appcfg)
		}
	}

	if resp.Entitled {
		kind := streamtoken.KindEmbed
		if movie.LinkType == models.LinkDirect {
			kind = streamtoken.KindDirect
		}
		issue := func(raw, kind, route string) (string, error) {
			if raw == "" {
				return "", nil
			}
			token, err := s.tokens.Issue(ctx, raw, kind)
			if err != nil {
				return "", err
			}
			return route + token, nil
		}
		if resp.PlayerURL, err = issue(movie.StreamURL, kind, "/stream/"); err != nil {
			s.abortError(c, err)
			return
		}
		if resp.PlayerURL2, err = issue(movie.StreamURL2, kind, "/stream/"); err != nil {
			s.abortError(c, err)
			return
		}
		if resp.DownloadURL, err = issue(movie.DownloadURL, streamtoken.KindDirect, "/dl/"); err != nil {
			s.abortError(c, err)
			return
		}
		if resp.DownloadURL2, err = issue(movie.DownloadURL2, streamtoken.KindDirect, "/dl/"); err != nil {
			s.abortError(c, err)
			return
		}
	}

	// strip the raw link fields before the record goes over the wire
	scrubbed := *movie
	scrubbed.StreamURL = ""
	scrubbed.StreamURL2 = ""
	scrubbed.DownloadURL = ""
	scrubbed.DownloadURL2 = ""
	resp.Movie = &scrubbed

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePublicConfig(c *gin.Context) {
	cfg, err := s.appcfg.Get(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleResolveURL(c *gin.Context) {
	resolved, err := s.tokens.Resolve(c.Request.Context(), c.Query("token"))
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": resolved})
}

// redirectable refuses anything that is not an absolute http(s) URL, so a
// bad stored link can never turn the 302 paths into a script-scheme redirect.
func redirectable(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func (s *Server) handleStream(c *gin.Context) {
	target, err := s.tokens.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.abortError(c, err)
		return
	}
	if !redirectable(target) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) handleDownload(c *gin.Context) {
	target, err := s.tokens.Redirect(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.abortError(c, err)
		return
	}
	if !redirectable(target) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

type credentialsRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	SecurityQ string `json:"securityQ"`
	SecurityA string `json:"securityA"`
}

// userView is the account as the client sees it.
type userView struct {
	Username   string   `json:"username"`
	Coins      int64    `json:"coins"`
	ExpiryDate *int64   `json:"expiryDate"`
	Favorites  []string `json:"favorites"`
	Purchased  []string `json:"purchased"`
	Premium    bool     `json:"premium"`
}

func (s *Server) userView(c *gin.Context, user *models.User) (userView, error) {
	appcfg, err := s.appcfg.Get(c.Request.Context())
	if err != nil {
		return userView{}, err
	}
	return userView{
		Username:   user.Username,
		Coins:      user.Coins,
		ExpiryDate: user.ExpiryDate,
		Favorites:  user.Favorites,
		Purchased:  user.Purchased,
		Premium:    s.accounts.IsPremium(user, appcfg),
	}, nil
}

func (s *Server) handleSignup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	user, err := s.accounts.Register(c.Request.Context(),
		req.Username, req.Password, s.requestIP(c), req.SecurityQ, req.SecurityA)
	if err != nil {
		s.abortError(c, err)
		return
	}
	s.setSessionCookie(c, user)
	view, err := s.userView(c, user)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	user, err := s.accounts.Authenticate(c.Request.Context(),
		req.Username, req.Password, s.requestIP(c))
	if err != nil {
		s.abortError(c, err)
		return
	}
	s.setSessionCookie(c, user)
	view, err := s.userView(c, user)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

func (s *Server) handleMe(c *gin.Context) {
	user := s.currentUser(c)
	if user == nil {
		s.clearSessionCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	view, err := s.userView(c, user)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

type movieIDRequest struct {
	MovieID string `json:"movieId" binding:"required"`
}

func (s *Server) handleBuyMovie(c *gin.Context) {
	user := s.currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	var req movieIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "movieId required"})
		return
	}
	if err := s.accounts.Purchase(c.Request.Context(), user.Username, req.MovieID); err != nil {
		s.abortError(c, err)
		return
	}
	fresh, err := s.accounts.Get(c.Request.Context(), user.Username)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "coins": fresh.Coins})
}

func (s *Server) handleFavorite(c *gin.Context) {
	user := s.currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	var req movieIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "movieId required"})
		return
	}
	favorite, err := s.accounts.ToggleFavorite(c.Request.Context(), user.Username, req.MovieID)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": favorite})
}

func (s *Server) handleRedeem(c *gin.Context) {
	user := s.currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}
	key, err := s.accounts.RedeemKey(c.Request.Context(), user.Username, req.Code)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": key.Type, "days": key.Days, "value": key.Value})
}
