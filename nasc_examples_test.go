package nasc

import (
	"fmt"
)

// Example types for documentation
type ExampleGreeter interface {
	Greet() string
}

type ExampleSimpleGreeter struct {
	Name string
}

func (g *ExampleSimpleGreeter) Greet() string {
	if g.Name != "" {
		return "Hello, " + g.Name + "!"
	}
	return "Hello, Nasc!"
}

type ExampleWelcome struct {
	Greeter ExampleGreeter `inject:""`
}

func ExampleNew() {
	container := New()
	fmt.Printf("Container created: %v, state: %v\n", container != nil, container.State())
	// Output: Container created: true, state: created
}

func ExampleContainer_Install() {
	container := New()

	err := container.Install(InstallerFunc(func(c *Container) error {
		c.Bind((*ExampleGreeter)(nil)).To(&ExampleSimpleGreeter{}).AsSingle()
		return nil
	}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	_, _ = container.ResolveDependencyRoots()
	_ = container.FlushInjectQueue()

	instance, _ := container.Resolve((*ExampleGreeter)(nil))
	fmt.Println(instance.(ExampleGreeter).Greet())
	// Output: Hello, Nasc!
}

func ExampleResolve() {
	container := New()
	_ = container.Install(InstallerFunc(func(c *Container) error {
		Bind[ExampleGreeter](c).FromInstance(&ExampleSimpleGreeter{Name: "Gopher"})
		Bind[*ExampleWelcome](c).ToSelf()
		return nil
	}))
	_, _ = container.ResolveDependencyRoots()
	_ = container.FlushInjectQueue()

	welcome, err := Resolve[*ExampleWelcome](container)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(welcome.Greeter.Greet())
	// Output: Hello, Gopher!
}

func ExampleContainer_CreateSubContainer() {
	app := New()
	_ = app.Install(InstallerFunc(func(c *Container) error {
		Bind[ExampleGreeter](c).FromInstance(&ExampleSimpleGreeter{Name: "app"})
		return nil
	}))
	_, _ = app.ResolveDependencyRoots()
	_ = app.FlushInjectQueue()

	request, _ := app.CreateSubContainer()
	_ = request.Install(InstallerFunc(func(c *Container) error {
		Bind[*ExampleWelcome](c).ToSelf()
		return nil
	}))
	_, _ = request.ResolveDependencyRoots()
	_ = request.FlushInjectQueue()

	welcome := MustResolve[*ExampleWelcome](request)
	fmt.Println(welcome.Greeter.Greet())
	// Output: Hello, app!
}

func ExampleBindingBuilder_WhenInjectedInto() {
	container := New()
	_ = container.Install(InstallerFunc(func(c *Container) error {
		Bind[ExampleGreeter](c).FromInstance(&ExampleSimpleGreeter{Name: "welcome"}).WhenInjectedInto(&ExampleWelcome{})
		Bind[ExampleGreeter](c).FromInstance(&ExampleSimpleGreeter{})
		Bind[*ExampleWelcome](c).ToSelf()
		return nil
	}))
	_, _ = container.ResolveDependencyRoots()
	_ = container.FlushInjectQueue()

	fmt.Println(MustResolve[ExampleGreeter](container).Greet())
	fmt.Println(MustResolve[*ExampleWelcome](container).Greeter.Greet())
	// Output:
	// Hello, Nasc!
	// Hello, welcome!
}

func ExampleContainer_ValidateResolve() {
	container := New()
	_ = container.Install(InstallerFunc(func(c *Container) error {
		Bind[*ExampleWelcome](c).ToSelf()
		return nil
	}))
	_, _ = container.ResolveDependencyRoots()
	_ = container.FlushInjectQueue()

	for _, err := range container.ValidateResolve(KeyOf[*ExampleWelcome]("").Type) {
		fmt.Println(err)
	}
	// Output: failed to inject *nasc.ExampleWelcome.Greeter (nasc.ExampleGreeter): binding not found for nasc.ExampleGreeter. Did you forget to Bind() it?
	//   object graph: *nasc.ExampleWelcome -> nasc.ExampleGreeter
}

func ExampleRunContext() {
	registry := NewContextRegistry()

	core := &RunContext{
		Name:          "core",
		ContractNames: []string{"core"},
		Registry:      registry,
		Installers: []Installer{InstallerFunc(func(c *Container) error {
			Bind[ExampleGreeter](c).FromInstance(&ExampleSimpleGreeter{Name: "core"})
			return nil
		})},
	}
	if err := core.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	feature := &RunContext{
		Name:                "feature",
		ParentContractNames: []string{"core"},
		Registry:            registry,
		Injectables:         []interface{}{&ExampleWelcome{}},
	}
	if err := feature.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(MustResolve[ExampleGreeter](feature.Container()).Greet())
	// Output: Hello, core!
}
