package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/interfaces"
)

func testDeployConfig() config.DeploymentConfig {
	return config.DeploymentConfig{
		Platform: interfaces.PlatformFedora,
		Cloud: config.CloudConfig{
			APIKey:         "test-api-key",
			Location:       config.DefaultLocation,
			ResourcePlanID: config.DefaultResourcePlanID,
			InstanceName:   "fhe-toolkit-fedora-1",
		},
	}
}

func testArtifact() interfaces.EncryptedRegistrationArtifact {
	return interfaces.EncryptedRegistrationArtifact{Ciphertext: []byte("sealed"), Path: "registration.json"}
}

func testRef() interfaces.SignedImageRef {
	return interfaces.SignedImageRef{RegistryURL: "docker.io", Namespace: "acme", Repository: "fhe-toolkit-fedora-s390x", Tag: "latest"}
}

func TestProvision_DefaultResourceGroupFlow(t *testing.T) {
	api := new(MockAPI)
	p := NewProvisioner(api, testLogger())
	cfg := testDeployConfig()

	var calls []string
	api.On("ExchangeToken", mock.Anything, "test-api-key").
		Run(func(args mock.Arguments) { calls = append(calls, "token") }).
		Return("bearer-123", time.Now().Add(time.Hour), nil)
	api.On("LookupAccount", mock.Anything, "bearer-123", "test-api-key").
		Run(func(args mock.Arguments) { calls = append(calls, "account") }).
		Return("acct-42", nil)
	api.On("DefaultResourceGroup", mock.Anything, "bearer-123", "acct-42").
		Run(func(args mock.Arguments) { calls = append(calls, "group") }).
		Return("rg-1", nil)
	api.On("CreateInstance", mock.Anything, "bearer-123", mock.Anything).
		Run(func(args mock.Arguments) { calls = append(calls, "create") }).
		Return("instance-7", nil)

	instance, err := p.Provision(context.Background(), testArtifact(), testRef(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "instance-7", instance.InstanceID)
	assert.Equal(t, config.DefaultLocation, instance.Location)
	assert.Equal(t, "latest", instance.SourceTag)

	// Account lookup then group lookup, exactly once each, before the
	// provisioning request.
	assert.Equal(t, []string{"token", "account", "group", "create"}, calls)
	api.AssertNumberOfCalls(t, "LookupAccount", 1)
	api.AssertNumberOfCalls(t, "DefaultResourceGroup", 1)
}

func TestProvision_ExplicitResourceGroupSkipsLookups(t *testing.T) {
	api := new(MockAPI)
	p := NewProvisioner(api, testLogger())
	cfg := testDeployConfig()
	cfg.Cloud.ResourceGroup = "rg-custom"

	api.On("ExchangeToken", mock.Anything, mock.Anything).Return("bearer-123", time.Now().Add(time.Hour), nil)
	api.On("CreateInstance", mock.Anything, "bearer-123", mock.MatchedBy(func(req interfaces.ProvisionRequest) bool {
		return req.ResourceGroupID == "rg-custom"
	})).Return("instance-7", nil)

	_, err := p.Provision(context.Background(), testArtifact(), testRef(), cfg)
	require.NoError(t, err)

	api.AssertNotCalled(t, "LookupAccount", mock.Anything, mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "DefaultResourceGroup", mock.Anything, mock.Anything, mock.Anything)
}

func TestProvision_TokenFailureAborts(t *testing.T) {
	api := new(MockAPI)
	p := NewProvisioner(api, testLogger())

	api.On("ExchangeToken", mock.Anything, mock.Anything).Return("", time.Time{}, interfaces.ErrAuth)

	_, err := p.Provision(context.Background(), testArtifact(), testRef(), testDeployConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))
	api.AssertNotCalled(t, "CreateInstance", mock.Anything, mock.Anything, mock.Anything)
}

func TestProvision_RefreshesExpiredToken(t *testing.T) {
	api := new(MockAPI)
	p := NewProvisioner(api, testLogger())
	cfg := testDeployConfig()
	cfg.Cloud.ResourceGroup = "rg-custom"

	// The first token is already at its expiry by submission time.
	api.On("ExchangeToken", mock.Anything, mock.Anything).Return("bearer-1", time.Now().Add(time.Millisecond), nil).Once()
	api.On("ExchangeToken", mock.Anything, mock.Anything).Return("bearer-2", time.Now().Add(time.Hour), nil).Once()
	api.On("CreateInstance", mock.Anything, "bearer-2", mock.Anything).Return("instance-7", nil)

	_, err := p.Provision(context.Background(), testArtifact(), testRef(), cfg)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "ExchangeToken", 2)
}

func TestProvision_SubmitsArtifactCiphertext(t *testing.T) {
	api := new(MockAPI)
	p := NewProvisioner(api, testLogger())
	cfg := testDeployConfig()
	cfg.Cloud.ResourceGroup = "rg-custom"

	api.On("ExchangeToken", mock.Anything, mock.Anything).Return("bearer-123", time.Now().Add(time.Hour), nil)
	api.On("CreateInstance", mock.Anything, "bearer-123", mock.MatchedBy(func(req interfaces.ProvisionRequest) bool {
		return string(req.Registration) == "sealed" && req.Name == "fhe-toolkit-fedora-1" && req.Tag == "latest"
	})).Return("instance-7", nil)

	_, err := p.Provision(context.Background(), testArtifact(), testRef(), cfg)
	require.NoError(t, err)
	api.AssertExpectations(t)
}
