// Package identity turns bearer tokens into document actors. The core never
// authenticates; it only consumes the actor id and system roles produced
// here.
package identity

import (
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

// ActorFromClaims maps token claims onto an actor. The id is "sub", falling
// back to "preferred_username"; system roles come from "roles" and Keycloak's
// "realm_access.roles". Unknown role names are ignored.
func ActorFromClaims(claims map[string]interface{}) (document.Actor, error) {
	id, _ := claims["sub"].(string)
	if strings.TrimSpace(id) == "" {
		id, _ = claims["preferred_username"].(string)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return document.Actor{}, fmt.Errorf("%w: token carries no subject", document.ErrForbidden)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}

	var raw []string
	raw = append(raw, stringList(claims["roles"])...)
	if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
		raw = append(raw, stringList(realm["roles"])...)
	}
	return document.Actor{ID: id, Name: name, Roles: document.NormalizeSystemRoles(raw)}, nil
}

func stringList(v interface{}) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(x, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return nil
}
