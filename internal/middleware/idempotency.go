package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"checkout_back_end/internal/kv"

	"github.com/gin-gonic/gin"
)

const inFlightStatus = 0

// Champs de transport qui ne participent pas à la comparaison des
// paramètres entre deux tentatives
var strippedParams = map[string]bool{
	"controller": true,
	"action":     true,
	"format":     true,
}

// idempotencyRecord — {paramètres normalisés, réponse} conservé 24h.
// Status 0 = requête encore en vol (marqueur posé par SetNX avant le
// handler pour fermer la fenêtre check-then-store).
type idempotencyRecord struct {
	Params      string `json:"params"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// IdempotencyGuard déduplique les requêtes mutantes par
// (endpoint, clé fournie par l'appelant)
type IdempotencyGuard struct {
	store     kv.Store
	retention time.Duration
}

func NewIdempotencyGuard(store kv.Store, retention time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{store: store, retention: retention}
}

// Guard protège un endpoint mutant. Sans header Idempotency-Key, la
// requête passe sans protection. Avec :
//   - première fois → le handler s'exécute, la réponse est mise en cache
//   - rejeu identique → réponse cachée renvoyée telle quelle
//   - même clé, paramètres différents → 409
func (g *IdempotencyGuard) Guard(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader("Idempotency-Key")
		if idemKey == "" {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
			c.Abort()
			return
		}
		// Remettre le body pour les handlers suivants
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		params := normalizeParams(bodyBytes)
		ctx := context.Background()
		sum := sha256.Sum256([]byte(endpoint + "|" + idemKey))
		storageKey := "idempotency:" + hex.EncodeToString(sum[:])

		raw, err := g.store.Get(ctx, storageKey)
		switch {
		case err == kv.ErrNotFound:
			// Marqueur "en vol" posé atomiquement : un doublon concurrent
			// perd le SetNX et retombe dans le cas suivant
			inFlight := idempotencyRecord{Params: params, Status: inFlightStatus}
			data, _ := json.Marshal(inFlight)
			ok, serr := g.store.SetNX(ctx, storageKey, string(data), g.retention)
			if serr != nil {
				log.Printf("⚠️ Garde d'idempotence indisponible: %v", serr)
				c.Next()
				return
			}
			if !ok {
				c.JSON(http.StatusConflict, gin.H{"error": "Requête identique déjà en cours de traitement"})
				c.Abort()
				return
			}
			g.execute(c, storageKey, string(data), params)
			return

		case err != nil:
			log.Printf("⚠️ Garde d'idempotence indisponible: %v", err)
			c.Next()
			return
		}

		var record idempotencyRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			log.Printf("⚠️ Enregistrement d'idempotence corrompu, purge: %v", err)
			_, _ = g.store.Del(ctx, storageKey)
			c.Next()
			return
		}

		if record.Params != params {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Clé d'idempotence réutilisée avec des paramètres différents",
			})
			c.Abort()
			return
		}

		if record.Status == inFlightStatus {
			c.JSON(http.StatusConflict, gin.H{"error": "Requête identique déjà en cours de traitement"})
			c.Abort()
			return
		}

		// Rejeu : réponse cachée renvoyée octet pour octet, sans
		// ré-exécution du handler
		contentType := record.ContentType
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		c.Data(record.Status, contentType, []byte(record.Body))
		c.Abort()
	}
}

// execute laisse tourner le handler en capturant la réponse, puis
// finalise l'enregistrement par CAS depuis le marqueur "en vol"
func (g *IdempotencyGuard) execute(c *gin.Context, storageKey, inFlightRaw, params string) {
	capture := &bodyCaptureWriter{ResponseWriter: c.Writer}
	c.Writer = capture

	c.Next()

	ctx := context.Background()
	status := c.Writer.Status()

	// Une erreur serveur n'est pas un résultat à rejouer : on efface le
	// marqueur pour qu'une nouvelle tentative ré-exécute le handler
	if status >= http.StatusInternalServerError {
		_, _ = g.store.Del(ctx, storageKey)
		return
	}

	record := idempotencyRecord{
		Params:      params,
		Status:      status,
		ContentType: c.Writer.Header().Get("Content-Type"),
		Body:        capture.buf.String(),
	}
	data, _ := json.Marshal(record)
	ok, err := g.store.CompareAndSwap(ctx, storageKey, inFlightRaw, string(data), g.retention)
	if err != nil || !ok {
		log.Printf("⚠️ Réponse idempotente non enregistrée pour %s", storageKey)
	}
}

// normalizeParams produit un JSON canonique (clés triées, champs de
// transport retirés) comparables entre deux tentatives
func normalizeParams(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return "{}"
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Body non-JSON : comparé tel quel
		return string(body)
	}

	for key := range parsed {
		if strippedParams[key] || strings.HasPrefix(key, "_") {
			delete(parsed, key)
		}
	}

	// json.Marshal trie les clés des maps : la sortie est canonique
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return string(body)
	}
	return string(normalized)
}

// bodyCaptureWriter duplique ce que le handler écrit
type bodyCaptureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
