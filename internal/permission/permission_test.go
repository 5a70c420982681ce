package permission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardPermissionDefaults(t *testing.T) {
	p := NewStandardPermission(Motion)
	assert.Equal(t, "You have not given this app permission to use the motion and fitness sensors. You can enable access by turning on 'Motion & Fitness' in the Privacy Settings.", p.DeniedMessage())
	assert.True(t, p.RequestIfNeeded())
	assert.False(t, p.IsOptional())
}

func TestStandardPermissionJSON(t *testing.T) {
	data, err := json.Marshal(NewStandardPermission(Motion))
	require.NoError(t, err)
	assert.JSONEq(t, `{"permissionType":"motion"}`, string(data))

	var decoded StandardPermission
	require.NoError(t, json.Unmarshal([]byte(`{
		"permissionType": "camera",
		"restrictedMessage": "Your access to the camera is restricted.",
		"deniedMessage": "You have previously denied permission for this app to use the camera.",
		"requestIfNeeded": false,
		"optional": true
	}`), &decoded))
	assert.Equal(t, Camera, decoded.Identifier())
	assert.Equal(t, "You have previously denied permission for this app to use the camera.", decoded.DeniedMessage())
	assert.False(t, decoded.RequestIfNeeded())
	assert.True(t, decoded.IsOptional())
}

func TestStatusIsDenied(t *testing.T) {
	assert.False(t, Authorized.IsDenied())
	assert.False(t, NotDetermined.IsDenied())
	assert.True(t, Restricted.IsDenied())
	assert.True(t, Denied.IsDenied())
	assert.True(t, PreviouslyDenied.IsDenied())
}

func TestRegistryFirstAdaptorWins(t *testing.T) {
	first := &StaticAdaptor{Statuses: map[Type]Status{Motion: Authorized}}
	second := &StaticAdaptor{Statuses: map[Type]Status{Motion: Denied, Microphone: Restricted}}

	r := NewRegistry(first, second)
	assert.Equal(t, Authorized, r.AuthorizationStatus(Motion))
	assert.Equal(t, Restricted, r.AuthorizationStatus(Microphone))
}

func TestRegistryUnregisteredFailsClosed(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, Denied, r.AuthorizationStatus(Camera))

	status, err := r.RequestAuthorization(context.Background(), NewStandardPermission(Camera))
	assert.Equal(t, Denied, status)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, NotHandled, perr.Kind)
	assert.Contains(t, perr.Error(), "camera")
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry(GrantAll(Location))
	assert.Equal(t, Authorized, r.AuthorizationStatus(Location))
	r.Reset()
	assert.Equal(t, Denied, r.AuthorizationStatus(Location))
}

func TestStaticAdaptorDenial(t *testing.T) {
	r := NewRegistry(&StaticAdaptor{Statuses: map[Type]Status{Microphone: Restricted}})
	status, err := r.RequestAuthorization(context.Background(), NewStandardPermission(Microphone))
	assert.Equal(t, Restricted, status)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, NotAuthorized, perr.Kind)
	assert.Equal(t, "Your access to the microphone is restricted.", perr.Error())
}

func TestFuncAdaptor(t *testing.T) {
	calls := 0
	r := NewRegistry(FuncAdaptor{
		Types:   []Type{Notifications},
		StatusF: func(Type) Status { return NotDetermined },
		Request: func(context.Context, Permission) (Status, error) {
			calls++
			return Authorized, nil
		},
	})
	assert.Equal(t, NotDetermined, r.AuthorizationStatus(Notifications))
	status, err := r.RequestAuthorization(context.Background(), NewStandardPermission(Notifications))
	require.NoError(t, err)
	assert.Equal(t, Authorized, status)
	assert.Equal(t, 1, calls)
}
