package nasc

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toutaio/toutago-nasc-container/config"
)

func TestRunContext_Run(t *testing.T) {
	rc := &RunContext{
		Name: "app",
		Installers: []Installer{install(func(c *Container) {
			Bind[Logger](c).To(&ConsoleLogger{}).AsSingle()
			Bind[*Reporter](c).ToSelf().AsSingle().NonLazy()
		})},
	}
	require.NoError(t, rc.Run())

	c := rc.Container()
	require.NotNil(t, c)
	assert.Equal(t, StateReady, c.State())
	assert.Len(t, c.DependencyRoots(), 1)
	assert.Same(t, rc, MustResolve[*RunContext](c))
}

func TestRunContext_ExtraBindingsRunFirst(t *testing.T) {
	rc := &RunContext{
		Name:          "app",
		ExtraBindings: install(bindNamedLogger("extra")),
		Installers:    []Installer{install(bindNamedLogger("installer"))},
	}
	require.NoError(t, rc.Run())

	all, err := ResolveAll[Logger](rc.Container())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "extra", loggerPath(t, all[0]))
	assert.Equal(t, "installer", loggerPath(t, all[1]))
	assert.Equal(t, "installer", loggerPath(t, MustResolve[Logger](rc.Container())))
}

func TestRunContext_ParentsFromRegistry(t *testing.T) {
	registry := NewContextRegistry()

	core := &RunContext{
		Name:          "core",
		ContractNames: []string{"core"},
		Registry:      registry,
		Installers:    []Installer{install(bindNamedLogger("core"))},
	}
	require.NoError(t, core.Run())

	explicit := newReadyContainer(t, bindNamedLogger("explicit"))

	feature := &RunContext{
		Name:                "feature",
		ParentContractNames: []string{"core"},
		Parents:             []*Container{explicit},
		Registry:            registry,
		Installers: []Installer{install(func(c *Container) {
			Bind[*Reporter](c).ToSelf()
		})},
	}
	require.NoError(t, feature.Run())

	assert.Equal(t, []*Container{explicit, core.Container()}, feature.Container().Parents())
	assert.Equal(t, "explicit", loggerPath(t, MustResolve[*Reporter](feature.Container()).Logger))
	assert.Equal(t, []*RunContext{core}, registry.Lookup("core"))
}

func TestRunContext_ParentErrors(t *testing.T) {
	t.Run("unknown contract name", func(t *testing.T) {
		rc := &RunContext{Name: "orphan", ParentContractNames: []string{"core"}, Registry: NewContextRegistry()}
		err := rc.Install()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no parent context registered under "core"`)
	})

	t.Run("parent not installed", func(t *testing.T) {
		registry := NewContextRegistry()
		registry.Register("core", &RunContext{Name: "pending"})

		rc := &RunContext{Name: "child", ParentContractNames: []string{"core"}, Registry: registry}
		err := rc.Install()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `parent context "pending" is not installed`)
	})

	t.Run("names without registry", func(t *testing.T) {
		rc := &RunContext{Name: "child", ParentContractNames: []string{"core"}}
		assert.Error(t, rc.Install())
	})

	t.Run("validating mismatch", func(t *testing.T) {
		parent := New(WithValidation())
		rc := &RunContext{Name: "child", Parents: []*Container{parent}}
		err := rc.Install()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating=true")
	})
}

func TestRunContext_PhasesRunOnce(t *testing.T) {
	rc := &RunContext{Name: "app"}

	assert.ErrorIs(t, rc.Resolve(), ErrNotInstalled)
	require.NoError(t, rc.Install())
	assert.ErrorIs(t, rc.Install(), ErrAlreadyInstalled)
	require.NoError(t, rc.Resolve())
	assert.ErrorIs(t, rc.Resolve(), ErrAlreadyResolved)
}

func TestRunContext_Injectables(t *testing.T) {
	reporter := &Reporter{}
	rc := &RunContext{
		Name:        "app",
		Injectables: []interface{}{reporter},
		Installers:  []Installer{install(bindNamedLogger("app"))},
	}
	require.NoError(t, rc.Run())

	assert.Equal(t, "app", loggerPath(t, reporter.Logger))
}

func TestRunContext_InvalidInjectable(t *testing.T) {
	rc := &RunContext{Name: "app", Injectables: []interface{}{"not a struct"}}
	assert.Error(t, rc.Install())
}

func TestRunContext_InstallerError(t *testing.T) {
	rc := &RunContext{
		Name: "app",
		Installers: []Installer{install(func(c *Container) {
			Bind[Logger](c).To(&MockDB{})
		})},
	}

	var regErr *RegistrationError
	assert.ErrorAs(t, rc.Run(), &regErr)
}

func TestRunContext_Validate(t *testing.T) {
	rc := &RunContext{
		Name:       "app",
		Validating: true,
		Installers: []Installer{install(func(c *Container) {
			Bind[*ServerConfig](c).FromInstance(&ServerConfig{})
		})},
	}

	err := rc.Validate()
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Errors, 1)
	assert.True(t, rc.Container().IsValidating())

	ignoring := &RunContext{
		Name:       "app",
		Validating: true,
		Installers: []Installer{install(func(c *Container) {
			Bind[*ServerConfig](c).FromInstance(&ServerConfig{})
		})},
	}
	assert.NoError(t, ignoring.Validate(reflect.TypeOf(&ServerConfig{})))
}

func TestRunContext_ValidatingMode(t *testing.T) {
	rc := &RunContext{
		Name:       "app",
		Validating: true,
		Installers: []Installer{install(func(c *Container) {
			Bind[*Reporter](c).ToSelf().NonLazy()
			Bind[*UserService](c).ToSelf().NonLazy()
		})},
	}

	err := rc.Validate()
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Errors, 3)
}

func TestRunContext_ValidateRequiresValidatingMode(t *testing.T) {
	calls := 0
	rc := &RunContext{
		Name: "app",
		Installers: []Installer{install(func(c *Container) {
			Bind[Logger](c).FromMethod(func(ctx *InjectContext) (interface{}, error) {
				calls++
				return &ConsoleLogger{}, nil
			}).AsSingle().NonLazy()
		})},
	}

	assert.ErrorIs(t, rc.Validate(), ErrNotValidating)
	assert.Nil(t, rc.Container())
	assert.Equal(t, 0, calls)
}

func TestRunContext_RunRejectsValidatingMode(t *testing.T) {
	rc := &RunContext{Name: "app", Validating: true}

	assert.ErrorIs(t, rc.Run(), ErrValidatingRun)
	assert.Nil(t, rc.Container())

	require.NoError(t, rc.Validate())
	assert.ErrorIs(t, rc.Validate(), ErrAlreadyInstalled)
}

func TestRunContext_ValidateNeverConstructs(t *testing.T) {
	calls := 0
	rc := &RunContext{
		Name:        "app",
		Validating:  true,
		Injectables: []interface{}{&Reporter{}},
		Installers: []Installer{install(func(c *Container) {
			Bind[Logger](c).FromMethod(func(ctx *InjectContext) (interface{}, error) {
				calls++
				return &ConsoleLogger{}, nil
			}).AsSingle().NonLazy()
		})},
	}

	require.NoError(t, rc.Validate())
	assert.Equal(t, 0, calls)
}

func TestRunContext_Dispose(t *testing.T) {
	registry := NewContextRegistry()
	var disposed []string

	rc := &RunContext{
		Name:          "core",
		ContractNames: []string{"core", "shared"},
		Registry:      registry,
		Installers: []Installer{install(func(c *Container) {
			Bind[*closer](c).FromMethod(func(ctx *InjectContext) (interface{}, error) {
				return &closer{name: "db", log: &disposed}, nil
			}).AsSingle().NonLazy()
		})},
	}
	require.NoError(t, rc.Run())
	require.Len(t, registry.Lookup("shared"), 1)

	require.NoError(t, rc.Dispose())
	assert.Empty(t, registry.Lookup("core"))
	assert.Empty(t, registry.Lookup("shared"))
	assert.Equal(t, []string{"db"}, disposed)
	assert.Equal(t, StateDisposed, rc.Container().State())

	assert.NoError(t, (&RunContext{}).Dispose())
}

func TestContextRegistry(t *testing.T) {
	registry := NewContextRegistry()
	a := &RunContext{Name: "a"}
	b := &RunContext{Name: "b"}

	registry.Register("db", a)
	registry.Register("db", a)
	registry.Register("db", b)
	registry.Register("cache", b)

	assert.Equal(t, []*RunContext{a, b}, registry.Lookup("db"))

	registry.Unregister(b)
	assert.Equal(t, []*RunContext{a}, registry.Lookup("db"))
	assert.Empty(t, registry.Lookup("cache"))
	assert.Empty(t, registry.Lookup("unknown"))
}

func TestNewRunContextFromConfig(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	cfg := config.Default()
	cfg.Name = "api"
	cfg.ContractNames = []string{"api"}
	cfg.SelectionPolicy = "last_registered"
	cfg.RequireAllArgs = true

	registry := NewContextRegistry()
	rc, err := NewRunContextFromConfig(cfg, registry, zap.New(core))
	require.NoError(t, err)

	rc.Installers = []Installer{install(func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
	})}
	require.NoError(t, rc.Run())

	c := rc.Container()
	assert.Equal(t, SelectLastRegistered, c.SelectionPolicy())
	assert.Equal(t, []*RunContext{rc}, registry.Lookup("api"))

	_, err = c.Instantiate(&Reporter{}, WithArgs(42))
	assert.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("run context ready").Len())
	// debug output is filtered at the configured level
	assert.Zero(t, logs.FilterMessage("resolving dependency roots").Len())
}

func TestNewRunContextFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"

	_, err := NewRunContextFromConfig(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRunContextFromConfig_Defaults(t *testing.T) {
	rc, err := NewRunContextFromConfig(nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rc.Run())
	assert.Equal(t, SelectPreferConditional, rc.Container().SelectionPolicy())
}
