package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

func TestCaseState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   types.CaseState
		wantErr bool
	}{
		{"open", types.CaseStateOpen, false},
		{"custom with underscore", "UNDER_REVIEW", false},
		{"with digits", "LEVEL2", false},
		{"empty", "", true},
		{"lowercase", "open", true},
		{"leading digit", "2ND", true},
		{"hyphen", "UNDER-REVIEW", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestParseCaseState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.CaseState
		wantErr bool
	}{
		{name: "exact", input: "CLOSED", want: types.CaseStateClosed},
		{name: "lowercase normalized", input: "investigating", want: types.CaseStateInvestigating},
		{name: "surrounding spaces", input: "  resolved ", want: types.CaseStateResolved},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not a state", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseCaseState(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestDefaultCaseStates(t *testing.T) {
	states := types.DefaultCaseStates()
	gt.A(t, states).Length(4)

	for _, s := range states {
		gt.NoError(t, s.Validate())
	}
	gt.Value(t, states[0]).Equal(types.CaseStateOpen)
	gt.Value(t, states[3]).Equal(types.CaseStateClosed)
}
