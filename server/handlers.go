package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/viant/sqlite-minhash/proof"
	"github.com/viant/sqlite-minhash/service"
	"github.com/viant/sqlite-minhash/signature"
)

type saveRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type saveResponse struct {
	ID int64 `json:"id"`
}

type queryRequest struct {
	Signature     string  `json:"signature" binding:"required"`
	MinSimilarity float64 `json:"min_similarity" binding:"gte=0,lte=1"`
	Limit         int     `json:"limit" binding:"gte=0"`
}

type candidate struct {
	ID         int64   `json:"id"`
	UserID     string  `json:"user_id"`
	Signature  string  `json:"signature"`
	Similarity float64 `json:"similarity"`
}

type queryResponse struct {
	Candidates []candidate `json:"candidates"`
	Skipped    int         `json:"skipped,omitempty"`
}

type proofRequest struct {
	Link string `json:"link" binding:"required"`
}

type proofResponse struct {
	ProofKey string `json:"proof_key"`
	DataHash string `json:"data_hash"`
}

type logRequest struct {
	ProofKey   string `json:"proof_key" binding:"required"`
	LogContent string `json:"log_content" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if !s.sigs.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "rehydrating"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "indexed": s.sigs.IndexLen()})
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abortWithError(c, &badRequest{err: fmt.Errorf("invalid request body: %w", err)})
		return false
	}
	return true
}

func (s *Server) decodeSignature(c *gin.Context, encoded string) (*signature.Signature, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.abortWithError(c, &badRequest{err: fmt.Errorf("signature is not valid base64: %w", err)})
		return nil, false
	}
	sig, err := signature.Decode(raw, s.sigs.NumPerm())
	if err != nil {
		s.abortWithError(c, err)
		return nil, false
	}
	return sig, true
}

func (s *Server) saveSignature(c *gin.Context) {
	var req saveRequest
	if !s.bind(c, &req) {
		return
	}
	sig, ok := s.decodeSignature(c, req.Signature)
	if !ok {
		return
	}
	id, err := s.sigs.Save(c.Request.Context(), req.UserID, sig)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, saveResponse{ID: id})
}

func (s *Server) querySignatures(c *gin.Context) {
	var req queryRequest
	if !s.bind(c, &req) {
		return
	}
	sig, ok := s.decodeSignature(c, req.Signature)
	if !ok {
		return
	}
	res, err := s.sigs.Query(c.Request.Context(), sig,
		service.WithMinSimilarity(req.MinSimilarity), service.WithLimit(req.Limit))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, queryResponse{Candidates: toCandidates(res.Matches), Skipped: len(res.Skipped)})
}

func (s *Server) scanSignatures(c *gin.Context) {
	var req queryRequest
	if !s.bind(c, &req) {
		return
	}
	sig, ok := s.decodeSignature(c, req.Signature)
	if !ok {
		return
	}
	matches, err := s.sigs.ScanExact(c.Request.Context(), sig, req.MinSimilarity)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	c.JSON(http.StatusOK, queryResponse{Candidates: toCandidates(matches)})
}

func toCandidates(matches []service.Match) []candidate {
	out := make([]candidate, len(matches))
	for i, m := range matches {
		out[i] = candidate{
			ID:         m.ID,
			UserID:     m.Owner,
			Signature:  base64.StdEncoding.EncodeToString(signature.Encode(m.Signature)),
			Similarity: m.Similarity,
		}
	}
	return out
}

const zipContentType = "application/zip"

// issueProof answers with the proof as JSON, or with the hashed bytes when
// the client accepts application/zip.
func (s *Server) issueProof(c *gin.Context) {
	var req proofRequest
	if !s.bind(c, &req) {
		return
	}
	var (
		p       *proof.Proof
		err     error
		content *bytes.Buffer
	)
	if strings.Contains(c.GetHeader("Accept"), zipContentType) {
		content = new(bytes.Buffer)
		p, err = s.proofs.IssueTo(c.Request.Context(), req.Link, content)
	} else {
		p, err = s.proofs.Issue(c.Request.Context(), req.Link)
	}
	if err != nil {
		s.metrics.proofOutcome(proofOutcome(err))
		s.abortWithError(c, err)
		return
	}
	s.metrics.proofOutcome("issued")
	c.Header(ProofKeyHeader, p.Key)
	c.Header(DataHashHeader, p.DataHash)
	if content != nil {
		c.Header("Content-Disposition", `attachment; filename="export.zip"`)
		c.Data(http.StatusCreated, zipContentType, content.Bytes())
		return
	}
	c.JSON(http.StatusCreated, proofResponse{ProofKey: p.Key, DataHash: p.DataHash})
}

func proofOutcome(err error) string {
	var (
		locatorErr  *proof.InvalidLocatorError
		conflictErr *proof.ConflictError
		fetchErr    *proof.FetchError
	)
	switch {
	case errors.As(err, &locatorErr):
		return "invalid_locator"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &fetchErr):
		return "fetch_failed"
	}
	return "error"
}

func (s *Server) getProof(c *gin.Context) {
	p, err := s.proofs.Lookup(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, proofResponse{ProofKey: p.Key, DataHash: p.DataHash})
}

func (s *Server) appendLog(c *gin.Context) {
	var req logRequest
	if !s.bind(c, &req) {
		return
	}
	s.logger.InfoContext(c.Request.Context(), "proof log",
		"proof_key", req.ProofKey,
		"log_content", req.LogContent,
		"request_id", requestID(c))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
