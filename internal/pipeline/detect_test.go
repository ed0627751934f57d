package pipeline

import "testing"

func TestDetectInspectionReport(t *testing.T) {
	cases := []struct {
		name        string
		subject     string
		text        string
		html        string
		attachments []string
		want        bool
	}{
		{
			name:        "attachment and subject",
			subject:     "Shade inspection report",
			attachments: []string{"rolls.xlsx"},
			want:        true,
		},
		{
			name:    "readings in body",
			subject: "QC results",
			text:    "roll 1 delta 0.8, roll 2 delta 1.4",
			want:    true,
		},
		{
			name: "html table",
			html: "<p>fabric shade inspection</p><table><tr><td>1</td></tr></table>",
			want: true,
		},
		{
			name:        "newsletter",
			subject:     "Weekly newsletter",
			text:        "Hello, see our offers.",
			attachments: []string{"brochure.pdf"},
			want:        false,
		},
	}
	for _, tc := range cases {
		got := DetectInspectionReport(tc.subject, tc.text, tc.html, tc.attachments)
		if got.IsInspection != tc.want {
			t.Fatalf("%s: got %v (score %.2f)", tc.name, got.IsInspection, got.Score)
		}
		if got.Score < 0 || got.Score > 1 {
			t.Fatalf("%s: score %.2f out of range", tc.name, got.Score)
		}
	}
}
