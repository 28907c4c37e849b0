package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		path    string
		ctx     context.Context
		rec     Recognition
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		backend = NewOllama(server.URL()+"/", "qwen2.5vl")
		path = filepath.Join(GinkgoT().TempDir(), "input.png")
		Expect(os.WriteFile(path, []byte("fake png bytes"), 0o644)).To(Succeed())
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		rec, err = backend.Recognize(ctx, path, "fra")
	})

	When("the model transcribes the receipt", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("qwen2.5vl"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(ConsistOf(base64.StdEncoding.EncodeToString([]byte("fake png bytes"))))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```\nCARREFOUR\nTOTAL 12,50\n```"},
					Done:    true,
				}),
			))
		})

		It("returns the transcript without decoration", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Text).To(Equal("CARREFOUR\nTOTAL 12,50"))
			Expect(rec.Confidence).To(BeZero())
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("reports the backend as unavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the call outlives its deadline", func() {
		BeforeEach(func() {
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			})
			c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			DeferCleanup(cancel)
			ctx = c
		})

		It("reports the backend as unavailable", func() {
			Expect(err).To(MatchError(ErrUnavailable))
		})
	})

	When("the image is missing", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "missing.png")
		})

		It("returns an error without calling the server", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
