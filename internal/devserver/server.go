package devserver

import (
	"context"
	"errors"
	"log"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/five82/crawldeck/internal/crawlapi"
)

const (
	tokenTTL        = 72 * time.Hour
	defaultPageSize = 10
	maxPageSize     = 100
	userIDKey       = "user_id"
)

// CrawlFunc analyzes one URL. It must return promptly once ctx is cancelled.
type CrawlFunc func(ctx context.Context, target string) (crawlapi.CrawlResult, error)

// Options configure a Server.
type Options struct {
	Secret string    // HS256 signing key; required
	Crawl  CrawlFunc // nil uses NewAnalyzer().Analyze
	Logger *log.Logger
}

// Server implements the crawl service API on top of a Store.
type Server struct {
	store  *Store
	secret []byte
	crawl  CrawlFunc
	logger *log.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	crawls map[int64]*crawlRun
}

type crawlRun struct {
	cancel context.CancelFunc
}

// NewServer wires store and opts into a Server.
func NewServer(store *Store, opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("devserver: secret is required")
	}
	crawl := opts.Crawl
	if crawl == nil {
		crawl = NewAnalyzer().Analyze
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		store:  store,
		secret: []byte(opts.Secret),
		crawl:  crawl,
		logger: logger,
		base:   base,
		cancel: cancel,
		crawls: make(map[int64]*crawlRun),
	}, nil
}

// Close cancels running crawls and waits for them to exit.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Handler returns the gin engine serving every route under /api.
func (s *Server) Handler(middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware...)
	r.Use(gin.Recovery(), requestID())

	health := func(c *gin.Context) { c.JSON(http.StatusOK, crawlapi.HealthResponse{Status: "ok"}) }
	r.GET("/health", health)

	api := r.Group("/api")
	api.GET("/health", health)

	auth := api.Group("/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
	}

	protected := api.Group("/")
	protected.Use(s.jwtRequired())
	{
		urls := protected.Group("/urls")
		{
			urls.GET("", s.listURLs)
			urls.POST("", s.createURL)
			urls.GET("/:id", s.getURL)
			urls.PUT("/:id/start", s.startCrawl)
			urls.PUT("/:id/stop", s.stopCrawl)
			urls.PUT("/:id/rerun", s.startCrawl)
			urls.DELETE("/:id", s.deleteURL)
			urls.GET("/:id/results", s.getResults)
		}
		protected.POST("/bulk/delete", s.bulkDelete)
		protected.POST("/bulk/rerun", s.bulkRerun)
	}
	return r
}

// requestID echoes the caller's X-Request-ID, or assigns one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(crawlapi.RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(crawlapi.RequestIDHeader, id)
		c.Next()
	}
}

// IssueToken signs a token for user.
func (s *Server) IssueToken(user crawlapi.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Server) jwtRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			abort(c, http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'")
			return
		}

		claims, err := s.validateToken(tokenStr)
		if err != nil {
			s.logger.Printf("JWT validation failed: %v", err)
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		userID, ok := claims["user_id"].(float64)
		if !ok || userID <= 0 {
			abort(c, http.StatusUnauthorized, "Invalid token claims")
			return
		}
		c.Set(userIDKey, int64(userID))
		c.Next()
	}
}

func (s *Server) validateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, crawlapi.ErrorResponse{Error: message})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, crawlapi.ErrorResponse{Error: message})
}

func (s *Server) login(c *gin.Context) {
	var req crawlapi.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.store.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, errBadLogin) {
			fail(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		fail(c, http.StatusInternalServerError, "Failed to load user")
		return
	}
	s.respondWithToken(c, http.StatusOK, user)
}

func (s *Server) register(c *gin.Context) {
	var req crawlapi.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || len(req.Password) < 4 {
		fail(c, http.StatusBadRequest, "username, email and a password of at least 4 characters are required")
		return
	}
	user, err := s.store.CreateUser(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errConflict) {
			fail(c, http.StatusConflict, "Username or email already exists")
			return
		}
		fail(c, http.StatusInternalServerError, "Failed to create user")
		return
	}
	s.respondWithToken(c, http.StatusCreated, user)
}

func (s *Server) respondWithToken(c *gin.Context, status int, user crawlapi.User) {
	token, err := s.IssueToken(user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	c.JSON(status, crawlapi.AuthResponse{Token: token, User: user})
}

func (s *Server) listURLs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	status, ok := crawlapi.ParseStatus(c.Query("status"))
	if !ok {
		fail(c, http.StatusBadRequest, "Invalid status")
		return
	}
	params := listParams{
		Page:      page,
		PageSize:  pageSize,
		Search:    strings.TrimSpace(c.Query("search")),
		Status:    status,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: strings.ToLower(c.DefaultQuery("sort_order", "desc")),
	}

	items, total, err := s.store.ListURLs(c.Request.Context(), c.GetInt64(userIDKey), params)
	if err != nil {
		s.logger.Printf("list urls: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to get URLs")
		return
	}
	c.JSON(http.StatusOK, crawlapi.ListResponse{
		Data:       items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

func (s *Server) createURL(c *gin.Context) {
	var req crawlapi.URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	raw := strings.TrimSpace(req.URL)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail(c, http.StatusBadRequest, "Invalid URL")
		return
	}
	item, err := s.store.CreateURL(c.Request.Context(), c.GetInt64(userIDKey), raw)
	if err != nil {
		s.logger.Printf("create url: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to create URL")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "URL created successfully", "data": item})
}

func (s *Server) getURL(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	item, err := s.store.GetURL(c.Request.Context(), c.GetInt64(userIDKey), id)
	if err != nil {
		s.notFoundOr500(c, err, "URL not found", "Failed to get URL")
		return
	}
	c.JSON(http.StatusOK, item)
}

// startCrawl serves both start and rerun: the URL goes to running and a fresh
// crawl replaces any in progress. The previous result stays until replaced.
func (s *Server) startCrawl(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := c.GetInt64(userIDKey)
	item, err := s.store.GetURL(c.Request.Context(), userID, id)
	if err != nil {
		s.notFoundOr500(c, err, "URL not found", "Failed to get URL")
		return
	}
	if err := s.launch(c.Request.Context(), userID, id, item.URL); err != nil {
		s.notFoundOr500(c, err, "URL not found", "Failed to update URL status")
		return
	}

	message := "Crawling started"
	if strings.HasSuffix(c.FullPath(), "/rerun") {
		message = "Crawling restarted"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (s *Server) stopCrawl(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.halt(c.Request.Context(), c.GetInt64(userIDKey), id); err != nil {
		s.notFoundOr500(c, err, "URL not found", "Failed to update URL status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Crawling stopped"})
}

func (s *Server) deleteURL(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	n, err := s.store.DeleteURLs(c.Request.Context(), c.GetInt64(userIDKey), []int64{id})
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to delete URL")
		return
	}
	if n == 0 {
		fail(c, http.StatusNotFound, "URL not found")
		return
	}
	s.forget(id)
	c.JSON(http.StatusOK, gin.H{"message": "URL deleted successfully"})
}

func (s *Server) getResults(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := s.store.GetResults(c.Request.Context(), c.GetInt64(userIDKey), id)
	if err != nil {
		s.notFoundOr500(c, err, "Results not found", "Failed to get results")
		return
	}
	c.JSON(http.StatusOK, result)
}

func bindIDs(c *gin.Context) ([]int64, bool) {
	var req crawlapi.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(req.IDs) == 0 {
		fail(c, http.StatusBadRequest, "No IDs provided")
		return nil, false
	}
	return req.IDs, true
}

func (s *Server) bulkDelete(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	userID := c.GetInt64(userIDKey)
	owned, err := s.store.OwnedIDs(c.Request.Context(), userID, ids)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get URLs")
		return
	}
	var n int64
	if len(owned) > 0 {
		n, err = s.store.DeleteURLs(c.Request.Context(), userID, slices.Collect(maps.Keys(owned)))
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to delete URLs")
			return
		}
	}
	for id := range owned {
		s.forget(id)
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "URLs deleted successfully",
		"data":    gin.H{"deleted_count": n},
	})
}

func (s *Server) bulkRerun(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	userID := c.GetInt64(userIDKey)
	owned, err := s.store.OwnedIDs(c.Request.Context(), userID, ids)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get URLs")
		return
	}
	count := 0
	for id, target := range owned {
		if err := s.launch(c.Request.Context(), userID, id, target); err != nil {
			s.logger.Printf("rerun %d: %v", id, err)
			continue
		}
		count++
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "URLs rerun started",
		"data":    gin.H{"rerun_count": count},
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "Invalid URL ID")
		return 0, false
	}
	return id, true
}

func (s *Server) notFoundOr500(c *gin.Context, err error, notFound, internal string) {
	if errors.Is(err, errNotFound) {
		fail(c, http.StatusNotFound, notFound)
		return
	}
	s.logger.Printf("%s: %v", internal, err)
	fail(c, http.StatusInternalServerError, internal)
}

// launch marks id running for userID and starts a crawl of target,
// cancelling any crawl already running for it. Status changes and the crawl
// registry move together under s.mu.
func (s *Server) launch(ctx context.Context, userID, id int64, target string) error {
	crawlCtx, cancel := context.WithCancel(s.base)
	run := &crawlRun{cancel: cancel}

	s.mu.Lock()
	if err := s.store.SetStatus(ctx, userID, id, crawlapi.StatusRunning); err != nil {
		s.mu.Unlock()
		cancel()
		return err
	}
	if prev, ok := s.crawls[id]; ok {
		prev.cancel()
	}
	s.crawls[id] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(id, run)

		s.logger.Printf("Starting crawl for URL ID %d: %s", id, target)
		result, err := s.crawl(crawlCtx, target)
		if crawlCtx.Err() != nil {
			return
		}
		s.record(id, run, result, err)
	}()
	return nil
}

// record stores the outcome of run unless it was stopped or replaced while
// crawling.
func (s *Server) record(id int64, run *crawlRun, result crawlapi.CrawlResult, crawlErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crawls[id] != run {
		return
	}

	// Store writes use a fresh context so a late cancel cannot leave the
	// status stuck at running.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if crawlErr != nil {
		s.logger.Printf("Crawl failed for URL ID %d: %v", id, crawlErr)
		s.markFailed(ctx, id)
		return
	}
	if err := s.store.SaveResult(ctx, id, result); err != nil {
		if errors.Is(err, errNotRunning) {
			s.logger.Printf("Discarding result for URL ID %d: no longer running", id)
			return
		}
		s.logger.Printf("save result for %d: %v", id, err)
		s.markFailed(ctx, id)
		return
	}
	s.logger.Printf("Crawl completed for URL ID %d", id)
}

func (s *Server) markFailed(ctx context.Context, id int64) {
	if err := s.store.SetStatus(ctx, 0, id, crawlapi.StatusFailed); err != nil && !errors.Is(err, errNotFound) {
		s.logger.Printf("mark %d failed: %v", id, err)
	}
}

// halt moves one of userID's URLs back to queued and cancels its crawl.
// Nothing is cancelled when the URL is not userID's.
func (s *Server) halt(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetStatus(ctx, userID, id, crawlapi.StatusQueued); err != nil {
		return err
	}
	s.cancelLocked(id)
	return nil
}

// forget cancels the crawl of a URL that has already been deleted.
func (s *Server) forget(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(id)
}

func (s *Server) cancelLocked(id int64) {
	if run, ok := s.crawls[id]; ok {
		run.cancel()
		delete(s.crawls, id)
	}
}

func (s *Server) finish(id int64, run *crawlRun) {
	run.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crawls[id] == run {
		delete(s.crawls, id)
	}
}
