package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/server/models"
)

func (s *Server) handleAdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Password != s.cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}
	token, err := s.issueAdminToken()
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleAdminSaveMovie(c *gin.Context) {
	var movie models.Movie
	if err := c.ShouldBindJSON(&movie); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed movie record"})
		return
	}
	if err := s.catalog.Save(c.Request.Context(), &movie); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": movie.ID})
}

func (s *Server) handleAdminDeleteMovie(c *gin.Context) {
	if err := s.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminListDrafts(c *gin.Context) {
	drafts, err := s.catalog.ListDrafts(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts})
}

func (s *Server) handleAdminSaveDraft(c *gin.Context) {
	var movie models.Movie
	if err := c.ShouldBindJSON(&movie); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed draft"})
		return
	}
	if err := s.catalog.SaveDraft(c.Request.Context(), &movie); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": movie.ID})
}

func (s *Server) handleAdminDeleteDraft(c *gin.Context) {
	if err := s.catalog.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminPublishDraft(c *gin.Context) {
	if err := s.catalog.Publish(c.Request.Context(), c.Param("id")); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminPublishAll(c *gin.Context) {
	published, err := s.catalog.PublishAll(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": published})
}

func (s *Server) handleAdminReindex(c *gin.Context) {
	count, err := s.catalog.RebuildAll(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reindexed": count})
}

func (s *Server) handleAdminRepair(c *gin.Context) {
	scanned, fixed, err := s.catalog.Repair(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scanned": scanned, "fixed": fixed})
}

func (s *Server) handleAdminBackup(c *gin.Context) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", `attachment; filename="goldflix-backup.ndjson"`)
	if _, err := s.backups.Dump(c.Request.Context(), c.Writer); err != nil {
		// headers are already out; all we can do is log and cut the stream
		s.log.Error(c.Request.Context(), "backup stream failed", "error", err)
		c.Abort()
	}
}

func (s *Server) handleAdminRestore(c *gin.Context) {
	restored, skipped, err := s.backups.Restore(c.Request.Context(), c.Request.Body)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored, "skipped": skipped})
}

func (s *Server) handleAdminBackupToS3(c *gin.Context) {
	if s.s3 == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "off-site storage not configured"})
		return
	}
	key, err := s.s3.Upload(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

func (s *Server) handleAdminGetConfig(c *gin.Context) {
	cfg, err := s.appcfg.Get(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleAdminSetConfig(c *gin.Context) {
	var cfg models.AppConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed config"})
		return
	}
	if err := s.appcfg.Set(c.Request.Context(), &cfg); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminBanUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Banned   bool   `json:"banned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}
	if err := s.accounts.SetBanned(c.Request.Context(), req.Username, req.Banned); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminCredit(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Coins    int64  `json:"coins" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and coins required"})
		return
	}
	if err := s.accounts.Credit(c.Request.Context(), req.Username, req.Coins); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminAddVip(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Days     int    `json:"days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and days required"})
		return
	}
	if err := s.accounts.AddVip(c.Request.Context(), req.Username, req.Days); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminCreateKey(c *gin.Context) {
	var key models.VipKey
	if err := c.ShouldBindJSON(&key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed key"})
		return
	}
	if key.Code == "" {
		suffix, err := common.MakeRandHexString(8)
		if err != nil {
			s.abortError(c, err)
			return
		}
		key.Code = fmt.Sprintf("GF-%s", suffix)
	}
	if err := s.accounts.CreateKey(c.Request.Context(), key); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": key.Code})
}

func (s *Server) handleAdminListKeys(c *gin.Context) {
	keys, err := s.accounts.ListKeys(c.Request.Context())
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (s *Server) handleAdminLogs(c *gin.Context) {
	logs, err := s.accounts.RecentLogs(c.Request.Context(), 100)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleAdminBanIP(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip required"})
		return
	}
	if err := s.accounts.BanIP(c.Request.Context(), req.IP); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdminUnbanIP(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip required"})
		return
	}
	if err := s.accounts.UnbanIP(c.Request.Context(), req.IP); err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
