package extraction

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Rules", func() {
	Describe("DefaultRules", func() {
		It("compiles the embedded rules", func() {
			Expect(func() { DefaultRules() }).NotTo(Panic())
		})
	})

	Describe("ParseRules", func() {
		var (
			doc   string
			rules *Rules
			err   error
		)

		JustBeforeEach(func() {
			rules, err = ParseRules([]byte(doc))
		})

		When("the document adds a locale", func() {
			BeforeEach(func() {
				doc = `{
					"merchants": ["EDEKA"],
					"total_keywords": ["summe", "gesamt"],
					"vat_keywords": ["mwst"],
					"item_skip_keywords": ["summe"],
					"corrections": [{"pattern": "(?i)\\bSUMNE\\b", "replace": "SUMME"}]
				}`
			})

			It("does not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("drives extraction without code changes", func() {
				e := NewExtractor(rules, nil)
				f := e.Extract("EDEKA\nBROT  2,20\nSUMNE 2,20\nMwSt 7% 0,14")
				Expect(f.Merchant).To(Equal("EDEKA"))
				Expect(f.Total.Decimal.Equal(decimal.RequireFromString("2.20"))).To(BeTrue())
				Expect(f.VAT.Decimal.StringFixed(2)).To(Equal("0.14"))
				Expect(f.LineItems).To(HaveLen(1))
			})
		})

		When("a correction pattern is invalid", func() {
			BeforeEach(func() {
				doc = `{"total_keywords": ["total"], "vat_keywords": ["tva"], "corrections": [{"pattern": "(", "replace": ""}]}`
			})

			It("returns an error naming the correction", func() {
				Expect(err).To(MatchError(ContainSubstring("correction 0")))
			})
		})

		When("no total keyword is configured", func() {
			BeforeEach(func() {
				doc = `{"vat_keywords": ["tva"]}`
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the document is not JSON", func() {
			BeforeEach(func() {
				doc = `merchants: [LIDL]`
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("LoadRules", func() {
		It("reads a rules file from disk", func() {
			path := filepath.Join(GinkgoT().TempDir(), "rules.json")
			Expect(os.WriteFile(path, defaultRulesJSON, 0o644)).To(Succeed())
			rules, err := LoadRules(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules.merchants).NotTo(BeEmpty())
		})

		It("fails on a missing file", func() {
			_, err := LoadRules(filepath.Join(GinkgoT().TempDir(), "missing.json"))
			Expect(err).To(HaveOccurred())
		})
	})
})
