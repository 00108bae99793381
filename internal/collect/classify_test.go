package collect

import "testing"

func TestIsThirdParty(t *testing.T) {
	prefixes := []string{"dsop", "tp-", "sim_"}

	cases := []struct {
		name  string
		third bool
	}{
		{"dsop_common.jar", false},
		{"DSOP_gateway.jar", false}, // case-insensitive
		{"tp-sdk-1.2.jar", false},
		{"sim_card.jar", false},
		{"spring-core-5.3.jar", true},
		{"commons-lang3.jar", true},
		{"mydsop.jar", true}, // prefix, not substring
	}
	for _, tc := range cases {
		if got := IsThirdParty(tc.name, prefixes); got != tc.third {
			t.Errorf("IsThirdParty(%q) = %v, want %v", tc.name, got, tc.third)
		}
	}
}

func TestClassFullName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"com/dsop/Gateway.class", "com.dsop.Gateway"},
		{"com/dsop/Gateway$Builder.class", "com.dsop.Gateway$Builder"},
		{"Top.class", "Top"},
		{"/leading/Slash.class", "leading.Slash"},
		{"com/dsop/notes.txt", ""},
		{".class", ""},
	}
	for _, tc := range cases {
		if got := ClassFullName(tc.path); got != tc.want {
			t.Errorf("ClassFullName(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
