package core

// Lifecycle hooks, implemented on *T of an entity type. A hook error fails
// the operation.
type BeforeSaver interface{ BeforeSave() error }
type AfterSaver interface{ AfterSave() error }
type BeforeUpdater interface{ BeforeUpdate() error }
type AfterUpdater interface{ AfterUpdate() error }
type BeforeDeleter interface{ BeforeDelete() error }
type AfterDeleter interface{ AfterDelete() error }
type AfterLoader interface{ AfterLoad() error }

func runHook[H any](v any, call func(H) error) error {
	if h, ok := v.(H); ok {
		return call(h)
	}
	return nil
}
