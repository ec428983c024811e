package signals_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parley/internal/domain"
	"parley/internal/signals"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.Profile
		want    domain.DetectedSignals
	}{
		{
			name:    "empty profile",
			profile: domain.Profile{},
			want:    domain.DetectedSignals{},
		},
		{
			name:    "cto is technical",
			profile: domain.Profile{Role: "CTO", CompanySize: "51-200", Budget: "10k-25k"},
			want:    domain.DetectedSignals{Technical: true},
		},
		{
			name:    "title substring matches",
			profile: domain.Profile{Role: "Senior DevOps Engineer"},
			want:    domain.DetectedSignals{Technical: true},
		},
		{
			name: "technical answers reveal hidden technical role",
			profile: domain.Profile{
				Role:    "Operations Manager",
				Answers: map[string]string{"stack": "We pull orders over the Shopify API into a self-hosted tool."},
			},
			want: domain.DetectedSignals{Technical: true},
		},
		{
			name:    "high budget bucket",
			profile: domain.Profile{Role: "Office Manager", Budget: "50k-100k"},
			want:    domain.DetectedSignals{BudgetReady: true},
		},
		{
			name:    "low budget bucket",
			profile: domain.Profile{Role: "Office Manager", Budget: "10k-25k"},
			want:    domain.DetectedSignals{},
		},
		{
			name:    "founder is decision maker",
			profile: domain.Profile{Role: "Founder", CompanySize: "51-200"},
			want:    domain.DetectedSignals{DecisionMaker: true},
		},
		{
			name:    "small company implies decision maker",
			profile: domain.Profile{Role: "Office Manager", CompanySize: "2-10"},
			want:    domain.DetectedSignals{DecisionMaker: true},
		},
		{
			name:    "case and whitespace insensitive",
			profile: domain.Profile{Role: "  ceo  ", Budget: " 100K+ ", CompanySize: " SOLO "},
			want:    domain.DetectedSignals{BudgetReady: true, DecisionMaker: true},
		},
		{
			name:    "all three at once",
			profile: domain.Profile{Role: "Co-founder and CTO", CompanySize: "2-10", Budget: "25k-50k"},
			want:    domain.DetectedSignals{Technical: true, BudgetReady: true, DecisionMaker: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, signals.Detect(tt.profile))
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	p := domain.Profile{
		Role:        "VP of Operations",
		CompanySize: "11-50",
		Budget:      "100k+",
		Answers:     map[string]string{"a": "we use webhooks", "b": "mostly manual"},
	}
	first := signals.Detect(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, signals.Detect(p))
	}
}
