package variantid

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"single":         "single",
		"SINGLE":         "single",
		"dgd_single":     "single",
		"sample_only":    "single",
		"fixed-context":  "fixed-context",
		"fixed_context":  "fixed-context",
		"FixedContext":   "fixed-context",
		"fixed":          "fixed-context",
		"dgd-joint":      "joint",
		"joint_variant":  "joint",
		"joint-onehot":   "joint-onehot",
		"joint_one_hot":  "joint-onehot",
		"Joint OneHot":   "joint-onehot",
		"onehot-dgd":     "joint-onehot",
		"custom_variant": "custom-variant",
		"  triple  ":     "triple",
		"":               "",
	}

	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("normalize(%q)=%q want=%q", in, got, want)
		}
	}
}
