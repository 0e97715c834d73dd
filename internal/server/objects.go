package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	objectdomain "github.com/billflow/billflow/internal/object/domain"
)

func (s *Server) UploadObject(c *gin.Context) {
	user := currentUser(c)

	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, objectdomain.ErrNoFilename)
		return
	}

	file, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	object, err := s.objectSvc.Upload(c.Request.Context(), objectdomain.UploadRequest{
		UserID:      user.ID,
		Username:    user.Username,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   header.Size,
		Body:        file,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "upload successful",
		"file":    object,
	})
}

func (s *Server) ListObjects(c *gin.Context) {
	user := currentUser(c)

	list, err := s.objectSvc.List(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) DownloadObject(c *gin.Context) {
	user := currentUser(c)

	download, err := s.objectSvc.Download(c.Request.Context(), user.ID, user.Username, c.Param("filename"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer download.Body.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	}
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.ContentType, download.Body, headers)
}

func (s *Server) DeleteObject(c *gin.Context) {
	user := currentUser(c)

	filename := c.Param("filename")
	if err := s.objectSvc.Delete(c.Request.Context(), user.ID, user.Username, filename); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%s deleted", filename),
	})
}

func (s *Server) StorageSummary(c *gin.Context) {
	user := currentUser(c)

	summary, err := s.objectSvc.Summary(c.Request.Context(), user.Username)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
