package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRefPattern matches ${VAR}, ${VAR:-default}, ${VAR:?message} and the
// escaped form $${...}
var envRefPattern = regexp.MustCompile(`\$?\$\{([^}]*)\}`)

// SubstituteEnvVars expands environment variable references in config file
// content before YAML parsing. Supported forms:
//
//	${VAR}            value of VAR, empty string when unset
//	${VAR:-default}   default when VAR is unset or empty
//	${VAR:?message}   load error when VAR is unset or empty
//	$${VAR}           literal ${VAR}, no substitution
func SubstituteEnvVars(content string) (string, error) {
	var firstErr error
	out := envRefPattern.ReplaceAllStringFunc(content, func(match string) string {
		if strings.HasPrefix(match, "$$") {
			return match[1:]
		}
		value, err := expandEnvExpr(match[2 : len(match)-1])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func expandEnvExpr(expr string) (string, error) {
	iDefault := strings.Index(expr, ":-")
	iRequired := strings.Index(expr, ":?")

	if iDefault >= 0 && (iRequired < 0 || iDefault < iRequired) {
		if value := os.Getenv(strings.TrimSpace(expr[:iDefault])); value != "" {
			return value, nil
		}
		return expr[iDefault+2:], nil
	}

	if iRequired >= 0 {
		name := strings.TrimSpace(expr[:iRequired])
		if value := os.Getenv(name); value != "" {
			return value, nil
		}
		message := strings.TrimSpace(expr[iRequired+2:])
		if message == "" {
			message = fmt.Sprintf("environment variable %s is required", name)
		}
		return "", fmt.Errorf("%s", message)
	}

	return os.Getenv(strings.TrimSpace(expr)), nil
}
