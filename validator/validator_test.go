package validator

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectSuccess(rules ...model.RuleSpec) model.TestCase {
	return model.TestCase{
		Name:            "success case",
		ExpectedOutcome: model.ExpectedOutcome{Status: model.StatusSuccess, ValidationRules: rules},
	}
}

func expectError(rules ...model.RuleSpec) model.TestCase {
	return model.TestCase{
		Name:            "error case",
		ExpectedOutcome: model.ExpectedOutcome{Status: model.StatusError, ValidationRules: rules},
	}
}

func TestValidateResponse_ExpectSuccess(t *testing.T) {
	t.Run("no rules requires data", func(t *testing.T) {
		res := ValidateResponse(model.SuccessResponse(`{}`), expectSuccess())
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)

		res = ValidateResponse(model.ToolResponse{Status: model.StatusSuccess}, expectSuccess())
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"No data in response"}, res.Errors)
	})

	t.Run("error response short circuits", func(t *testing.T) {
		tc := expectSuccess(model.RuleSpec{Type: "startsWith", Message: "never evaluated"})

		res := ValidateResponse(model.ErrorResponse("city not found"), tc)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"Tool execution failed: city not found"}, res.Errors)

		res = ValidateResponse(model.ToolResponse{Status: model.StatusError}, tc)
		assert.Equal(t, []string{"Tool execution failed: Unknown error"}, res.Errors)

		res = ValidateResponse(model.ToolResponse{Status: model.StatusError, Error: &model.ToolError{}}, tc)
		assert.Equal(t, []string{"Tool execution failed: Unknown error"}, res.Errors)
	})

	t.Run("rules run against decoded payload", func(t *testing.T) {
		resp := model.SuccessResponse(`{"tags":["a","b"],"user":{"address":{"zip":null}},"items":[1,2,3]}`)
		tc := expectSuccess(
			model.RuleSpec{Type: model.RuleContains, Target: "tags", Value: "b", Message: "tag b"},
			model.RuleSpec{Type: model.RuleHasProperty, Target: "user.address.zip", Message: "zip"},
			model.RuleSpec{Type: model.RuleArrayLength, Target: "items", Value: 3, Message: "three items"},
		)

		res := ValidateResponse(resp, tc)
		assert.True(t, res.Valid, res.Errors)
	})

	t.Run("every failed rule is reported", func(t *testing.T) {
		resp := model.SuccessResponse(`{"tags":["a","b"],"items":[1,2,3]}`)
		tc := expectSuccess(
			model.RuleSpec{Type: model.RuleContains, Target: "tags", Value: "c", Message: "missing tag c"},
			model.RuleSpec{Type: "startsWith", Target: "tags", Value: "a", Message: "x"},
			model.RuleSpec{Type: model.RuleArrayLength, Target: "items", Value: 2, Message: "expected two items"},
		)

		res := ValidateResponse(resp, tc)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{
			"missing tag c",
			"Unknown rule type: startsWith",
			"expected two items",
		}, res.Errors)
	})
}

func TestValidateResponse_MalformedPayload(t *testing.T) {
	rule := model.RuleSpec{Type: model.RuleHasProperty, Target: "a", Message: "a"}

	tests := []struct {
		name string
		resp model.ToolResponse
		want string
	}{
		{
			"no data",
			model.ToolResponse{Status: model.StatusSuccess},
			"Malformed response payload: response has no data",
		},
		{
			"empty content",
			model.ToolResponse{Status: model.StatusSuccess, Data: &model.Envelope{}},
			"Malformed response payload: content array is empty",
		},
		{
			"text is not json",
			model.SuccessResponse("not json"),
			"Malformed response payload: content[0].text is not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res model.ValidationResult
			require.NotPanics(t, func() {
				res = ValidateResponse(tt.resp, expectSuccess(rule))
			})
			assert.False(t, res.Valid)
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], tt.want)
		})
	}
}

func TestValidateResponse_ExpectError(t *testing.T) {
	t.Run("error without rules", func(t *testing.T) {
		res := ValidateResponse(model.ErrorResponse("boom"), expectError())
		assert.True(t, res.Valid)
	})

	t.Run("success response is not terminal", func(t *testing.T) {
		tc := expectError(model.RuleSpec{Type: model.RuleHasProperty, Target: "error.message", Message: "no error message"})

		res := ValidateResponse(model.SuccessResponse(`{"ok":true}`), tc)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"Expected tool to return an error", "no error message"}, res.Errors)
	})

	t.Run("rules see the raw response", func(t *testing.T) {
		tc := expectError(
			model.RuleSpec{Type: model.RuleContains, Target: "error.message", Value: "not found", Message: "wrong message"},
			model.RuleSpec{Type: model.RuleEquals, Target: "status", Value: "error", Message: "status"},
			model.RuleSpec{Type: model.RuleMatches, Target: "error.message", Value: "/^city .* found$/", Message: "pattern"},
		)

		res := ValidateResponse(model.ErrorResponse("city not found"), tc)
		assert.True(t, res.Valid, res.Errors)
	})

	t.Run("unrecognized expected status takes the error branch", func(t *testing.T) {
		tc := model.TestCase{ExpectedOutcome: model.ExpectedOutcome{Status: ""}}
		res := ValidateResponse(model.SuccessResponse(`{}`), tc)
		assert.Equal(t, []string{"Expected tool to return an error"}, res.Errors)
	})
}

func TestValidateResponse_EqualsIgnoresKeyOrder(t *testing.T) {
	resp := model.SuccessResponse(`{"obj":{"a":1,"b":2}}`)
	tc := expectSuccess(model.RuleSpec{
		Type:    model.RuleEquals,
		Target:  "obj",
		Value:   map[string]any{"b": 2, "a": 1},
		Message: "obj mismatch",
	})

	assert.True(t, ValidateResponse(resp, tc).Valid)
}

func TestValidateResponse_MissingTargetIsNotNull(t *testing.T) {
	resp := model.SuccessResponse(`{"user":{"name":"ann","nickname":null}}`)

	res := ValidateResponse(resp, expectSuccess(
		model.RuleSpec{Type: model.RuleEquals, Target: "user.email", Value: nil, Message: "email not null"},
		model.RuleSpec{Type: model.RuleMatches, Target: "does.not.exist", Value: nil, Message: "no match"},
		model.RuleSpec{Type: model.RuleEquals, Target: "user.nickname", Value: nil, Message: "nickname not null"},
	))

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"email not null", "no match"}, res.Errors)
}

func TestValidateResponse_CustomPredicates(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("positiveTotal", func(data any) bool {
		total, ok := Resolve(data, "total")
		n, isNum := total.(float64)
		return ok && isNum && n > 0
	})
	v := New(WithRegistry(reg))

	tc := expectSuccess(
		model.RuleSpec{Type: model.RuleCustom, Predicate: "positiveTotal", Message: "total must be positive"},
		model.RuleSpec{Type: model.RuleCustom, Message: "no predicate, no-op"},
	)

	assert.True(t, v.ValidateResponse(model.SuccessResponse(`{"total":4}`), tc).Valid)

	res := v.ValidateResponse(model.SuccessResponse(`{"total":0}`), tc)
	assert.Equal(t, []string{"total must be positive"}, res.Errors)
}

func TestValidateResponse_Idempotent(t *testing.T) {
	resp := model.SuccessResponse(`{"tags":["a"],"obj":{"k":[1,2]}}`)
	value := map[string]any{"k": []any{1, 2}}
	tc := expectSuccess(
		model.RuleSpec{Type: model.RuleEquals, Target: "obj", Value: value, Message: "obj"},
		model.RuleSpec{Type: model.RuleContains, Target: "tags", Value: "z", Message: "z"},
	)

	first := ValidateResponse(resp, tc)
	second := ValidateResponse(resp, tc)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"k": []any{1, 2}}, value)
	assert.Equal(t, `{"tags":["a"],"obj":{"k":[1,2]}}`, resp.Data.Content[0].Text)
}

func TestValidateResponse_Concurrent(t *testing.T) {
	v := New(WithRegistry(NewRegistry()))
	resp := model.SuccessResponse(`{"items":[1,2,3]}`)
	tc := expectSuccess(model.RuleSpec{Type: model.RuleArrayLength, Target: "items", Value: 3, Message: "len"})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, v.ValidateResponse(resp, tc).Valid)
		}()
	}
	wg.Wait()
}

func TestValidator_RuleHookAndLogger(t *testing.T) {
	var buf bytes.Buffer
	var seen []RuleOutcome

	v := New(
		WithRegistry(NewRegistry()),
		WithLogger(logger.NewLogger(&buf, true)),
		WithRuleHook(func(o RuleOutcome) { seen = append(seen, o) }),
	)

	resp := model.SuccessResponse(`{"a":1}`)
	v.ValidateResponse(resp, expectSuccess(
		model.RuleSpec{Type: model.RuleHasProperty, Target: "a", Message: "a"},
		model.RuleSpec{Type: model.RuleHasProperty, Target: "b", Message: "b missing"},
	))

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Passed)
	assert.False(t, seen[1].Passed)
	assert.Equal(t, model.RuleHasProperty, seen[1].Kind)
	assert.Contains(t, buf.String(), "Validation rule failed")
	assert.Contains(t, buf.String(), "b missing")
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload(&model.Envelope{Content: []model.ContentItem{{Type: "text", Text: `{"a":[1,"x"]}`}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{float64(1), "x"}}, payload)

	_, err = DecodePayload(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	_, err = DecodePayload(&model.Envelope{Content: []model.ContentItem{{Text: "{"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
	var pe *PayloadError
	require.True(t, errors.As(err, &pe))
	assert.NotNil(t, pe.Unwrap())
}
