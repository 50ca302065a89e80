package nasc

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Mailer struct {
	Logger Logger
	From   string
}

func NewMailer(logger Logger) *Mailer {
	return &Mailer{Logger: logger, From: "noreply@example.com"}
}

var errSMTPDown = errors.New("smtp server unreachable")

func NewBrokenMailer(logger Logger) (*Mailer, error) {
	return nil, errSMTPDown
}

type Notifier struct {
	Primary  Logger
	Fallback Logger
	Owner    *Container
}

func NewNotifier(primary, fallback Logger, owner *Container) *Notifier {
	return &Notifier{Primary: primary, Fallback: fallback, Owner: owner}
}

type registeredService struct {
	Logger Logger
	DB     Database `inject:""`
}

func newRegisteredService(logger Logger) *registeredService {
	return &registeredService{Logger: logger}
}

func TestParseConstructor(t *testing.T) {
	desc, err := parseConstructor(NewNotifier, []string{"", "fallback"})
	require.NoError(t, err)

	assert.Equal(t, reflect.TypeOf(&Notifier{}), desc.Type)
	require.Len(t, desc.Params, 3)
	assert.Equal(t, typeFor[Logger](), desc.Params[0].Type)
	assert.Equal(t, "", desc.Params[0].ID)
	assert.Equal(t, "fallback", desc.Params[1].ID)
	assert.True(t, desc.Params[2].IsContainer)
	assert.NotNil(t, desc.Construct)
}

func TestParseConstructor_Invalid(t *testing.T) {
	var nilFunc func() *Mailer

	tests := []struct {
		name string
		fn   ConstructorFunc
		ids  []string
	}{
		{"nil", nil, nil},
		{"nil func", nilFunc, nil},
		{"not a function", "NewMailer", nil},
		{"no return values", func() {}, nil},
		{"too many return values", func() (*Mailer, error, int) { return nil, nil, 0 }, nil},
		{"error first", func() error { return nil }, nil},
		{"second is not error", func() (*Mailer, int) { return nil, 0 }, nil},
		{"variadic", func(loggers ...Logger) *Mailer { return nil }, nil},
		{"too many ids", NewMailer, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConstructor(tt.fn, tt.ids)
			assert.Error(t, err)
		})
	}
}

func TestFromConstructor(t *testing.T) {
	console := &ConsoleLogger{}
	c := newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).FromInstance(console)
		Bind[*Mailer](c).FromConstructor(NewMailer)
	})

	mailer := MustResolve[*Mailer](c)
	assert.Same(t, console, mailer.Logger)
	assert.Equal(t, "noreply@example.com", mailer.From)
}

func TestFromConstructor_IdentifiedParamsAndContainer(t *testing.T) {
	primary := &ConsoleLogger{}
	fallback := &FileLogger{path: "fallback.log"}

	c := newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).FromInstance(primary)
		Bind[Logger](c).WithID("fallback").FromInstance(fallback)
		Bind[*Notifier](c).FromConstructor(NewNotifier, "", "fallback")
	})

	n := MustResolve[*Notifier](c)
	assert.Same(t, primary, n.Primary)
	assert.Same(t, fallback, n.Fallback)
	assert.Same(t, c, n.Owner)
}

func TestFromConstructor_ContainerParamIsResolvingContainer(t *testing.T) {
	parent := newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
		Bind[Logger](c).WithID("fallback").To(&FileLogger{})
		Bind[*Notifier](c).FromConstructor(NewNotifier, "", "fallback").AsScoped()
	})
	child := newReadyChild(t, []*Container{parent}, func(c *Container) {})

	assert.Same(t, child, MustResolve[*Notifier](child).Owner)
	assert.Same(t, parent, MustResolve[*Notifier](parent).Owner)
}

func TestFromConstructor_Error(t *testing.T) {
	c := newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
		Bind[*Mailer](c).FromConstructor(NewBrokenMailer)
	})

	_, err := Resolve[*Mailer](c)

	assert.ErrorIs(t, err, errSMTPDown)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, reflect.TypeOf(&Mailer{}), resErr.Concrete)
}

func TestFromConstructor_MissingParam(t *testing.T) {
	c := newReadyContainer(t, func(c *Container) {
		Bind[*Mailer](c).FromConstructor(NewMailer)
	})

	_, err := Resolve[*Mailer](c)

	var notFound *BindingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Chain, "*nasc.Mailer -> nasc.Logger")
}

func TestFromConstructor_Invalid(t *testing.T) {
	c := New()
	err := c.Install(install(func(c *Container) {
		Bind[*Mailer](c).FromConstructor("not a function")
	}))

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "invalid constructor", regErr.Reason)
}

func TestFromConstructor_NotAssignable(t *testing.T) {
	c := New()
	err := c.Install(install(func(c *Container) {
		Bind[Database](c).FromConstructor(NewMailer)
	}))

	var regErr *RegistrationError
	assert.ErrorAs(t, err, &regErr)
}

func TestRegisterConstructor(t *testing.T) {
	require.NoError(t, RegisterConstructor(newRegisteredService))
	t.Cleanup(func() {
		defaultReflect.mu.Lock()
		delete(defaultReflect.constructors, reflect.TypeOf(&registeredService{}))
		defaultReflect.mu.Unlock()
		sharedDescriptors.forget(reflect.TypeOf(&registeredService{}))
	})

	c := newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
		Bind[Database](c).To(&MockDB{})
		Bind[*registeredService](c).ToSelf()
	})

	svc := MustResolve[*registeredService](c)
	assert.NotNil(t, svc.Logger)
	assert.NotNil(t, svc.DB)

	assert.Error(t, RegisterConstructor(42))
}

func mailerFrom(from string) func(Logger) *Mailer {
	return func(logger Logger) *Mailer {
		return &Mailer{Logger: logger, From: from}
	}
}

func TestAsSingle_ConstructorClosures(t *testing.T) {
	c := New()
	err := c.Install(install(func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
		Bind[*Mailer](c).WithID("sales").FromConstructor(mailerFrom("sales@example.com")).AsSingle()
		Bind[*Mailer](c).WithID("support").FromConstructor(mailerFrom("support@example.com")).AsSingle()
	}))

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Contains(t, err.Error(), "already bound")

	shared := mailerFrom("team@example.com")
	c = newReadyContainer(t, func(c *Container) {
		Bind[Logger](c).To(&ConsoleLogger{})
		Bind[*Mailer](c).WithID("a").FromConstructor(shared).AsSingle()
		Bind[*Mailer](c).WithID("b").FromConstructor(shared).AsSingle()
		Bind[*Mailer](c).WithID("sales").FromConstructor(mailerFrom("sales@example.com")).WithConcreteID("sales").AsSingle()
	})

	a := MustResolve[*Mailer](c, WithID("a"))
	assert.Same(t, a, MustResolve[*Mailer](c, WithID("b")))
	assert.Equal(t, "team@example.com", a.From)
	assert.Equal(t, "sales@example.com", MustResolve[*Mailer](c, WithID("sales")).From)
}
