package runtime

import (
	"os"
	"testing"
)

func withEnvironment(t *testing.T, value string) {
	t.Helper()
	saved, had := os.LookupEnv("ENVIRONMENT")
	t.Cleanup(func() {
		if had {
			os.Setenv("ENVIRONMENT", saved)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	})
	if value == "" {
		os.Unsetenv("ENVIRONMENT")
	} else {
		os.Setenv("ENVIRONMENT", value)
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Run("true when development", func(t *testing.T) {
		withEnvironment(t, "development")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		withEnvironment(t, "production")
		if IsDevelopment() {
			t.Error("IsDevelopment() should return false for production")
		}
	})

	t.Run("true when unset (default)", func(t *testing.T) {
		withEnvironment(t, "")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true when env is unset")
		}
	})
}

func TestIsTesting(t *testing.T) {
	t.Run("true when testing", func(t *testing.T) {
		withEnvironment(t, "testing")
		if !IsTesting() {
			t.Error("IsTesting() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withEnvironment(t, "development")
		if IsTesting() {
			t.Error("IsTesting() should return false for development")
		}
	})
}

func TestIsProduction(t *testing.T) {
	t.Run("true when production", func(t *testing.T) {
		withEnvironment(t, "production")
		if !IsProduction() {
			t.Error("IsProduction() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withEnvironment(t, "development")
		if IsProduction() {
			t.Error("IsProduction() should return false for development")
		}
	})
}

func TestIsDevelopmentOrTesting(t *testing.T) {
	t.Run("true when development", func(t *testing.T) {
		withEnvironment(t, "development")
		if !IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return true for development")
		}
	})

	t.Run("true when testing", func(t *testing.T) {
		withEnvironment(t, "testing")
		if !IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return true for testing")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		withEnvironment(t, "production")
		if IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return false for production")
		}
	})
}

func TestEnvFromEnvironmentVariable(t *testing.T) {
	t.Run("reads ENVIRONMENT", func(t *testing.T) {
		withEnvironment(t, "testing")
		if Env() != Testing {
			t.Error("Env() should read ENVIRONMENT")
		}
	})

	t.Run("defaults to development when unset", func(t *testing.T) {
		withEnvironment(t, "")
		if Env() != Development {
			t.Error("Env() should default to development")
		}
	})
}

func TestParseEnvironmentEdgeCases(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		env, ok := ParseEnvironment("PRODUCTION")
		if !ok || env != Production {
			t.Error("ParseEnvironment should be case insensitive")
		}
	})

	t.Run("mixed case", func(t *testing.T) {
		env, ok := ParseEnvironment("DeVeLoPmEnT")
		if !ok || env != Development {
			t.Error("ParseEnvironment should handle mixed case")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		env, ok := ParseEnvironment("  testing  ")
		if !ok || env != Testing {
			t.Error("ParseEnvironment should trim whitespace")
		}
	})

	t.Run("unknown returns development with ok=false", func(t *testing.T) {
		env, ok := ParseEnvironment("staging")
		if ok {
			t.Error("ParseEnvironment should return ok=false for unknown")
		}
		if env != Development {
			t.Error("ParseEnvironment should return Development for unknown")
		}
	})
}
