// Package scalars defines the custom GraphQL scalar types mounted by the
// generated schema.
package scalars

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// BigInt is a 64-bit integer serialized as a string, used for primary key
// values that can exceed GraphQL's 32-bit Int.
func BigInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigInt",
		Description: "64-bit integer value serialized as a string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case int:
				return strconv.FormatInt(int64(v), 10)
			case int32:
				return strconv.FormatInt(int64(v), 10)
			case int64:
				return strconv.FormatInt(v, 10)
			case uint64:
				return strconv.FormatUint(v, 10)
			case float64:
				if v != math.Trunc(v) {
					return nil
				}
				return strconv.FormatInt(int64(v), 10)
			case string:
				if _, err := strconv.ParseInt(v, 10, 64); err == nil {
					return v
				}
				return nil
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case int:
				return int64(v)
			case int32:
				return int64(v)
			case int64:
				return v
			case float64:
				if v != math.Trunc(v) {
					return nil
				}
				return int64(v)
			case string:
				parsed, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil
				}
				return parsed
			default:
				return nil
			}
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				parsed, err := strconv.ParseInt(v.Value, 10, 64)
				if err != nil {
					return nil
				}
				return parsed
			case *ast.StringValue:
				parsed, err := strconv.ParseInt(v.Value, 10, 64)
				if err != nil {
					return nil
				}
				return parsed
			default:
				return nil
			}
		},
	})
}

// JSON is an arbitrary JSON value serialized as a string. The schema uses it
// for echoed mutation inputs and error paths, whose shapes are not statically
// typed.
func JSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value serialized as a string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				return string(v)
			case string:
				return v
			case nil:
				return nil
			default:
				serialized, err := json.Marshal(v)
				if err != nil {
					slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
					return nil
				}
				return string(serialized)
			}
		},
		ParseValue: func(value interface{}) interface{} {
			if s, ok := value.(string); ok {
				return s
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return sv.Value
			}
			return nil
		},
	})
}

// Base64 is a byte string carried as standard base64 text.
func Base64() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Base64",
		Description: "Binary value serialized as standard base64 text.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				return base64.StdEncoding.EncodeToString(v)
			case string:
				return base64.StdEncoding.EncodeToString([]byte(v))
			case nil:
				return nil
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			s, ok := value.(string)
			if !ok {
				return nil
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil
			}
			return decoded
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			sv, ok := valueAST.(*ast.StringValue)
			if !ok {
				return nil
			}
			decoded, err := base64.StdEncoding.DecodeString(sv.Value)
			if err != nil {
				return nil
			}
			return decoded
		},
	})
}
