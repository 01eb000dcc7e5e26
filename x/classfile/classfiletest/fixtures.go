package classfiletest

const (
	ServicePkg        = "com/tngtech/archunit/example/service/"
	PersistencePkg    = "com/tngtech/archunit/example/persistence/"
	ServiceViolating  = ServicePkg + "ServiceViolatingDaoRules"
	MyEntityManager   = ServiceViolating + "$MyEntityManager"
	EntityManager     = "javax/persistence/EntityManager"
	MyDao             = "com/tngtech/archunit/example/MyDao"
	ProperDao         = PersistencePkg + "ProperDao"
	objectClass       = "java/lang/Object"
	persistDescriptor = "(Ljava/lang/Object;)V"
)

func defaultConstructor(line int) Method {
	return Method{
		Access: AccPublic,
		Name:   "<init>",
		Desc:   "()V",
		Code: func(p *Pool) []byte {
			return Concat([]byte{0x2a}, Op(0xb7, p.Method(objectClass, "<init>", "()V")), []byte{0xb1})
		},
		Lines: [][2]int{{0, line}},
	}
}

// ServiceViolatingDaoRulesClass 对应如下源码 (行号与字节码行表一致):
//
//	12 public class ServiceViolatingDaoRules {
//	..     EntityManager entityManager; MyEntityManager myEntityManager;
//	23     public void illegallyUseEntityManager() {
//	24         entityManager.persist(new Object());
//	25         myEntityManager.persist(new Object());
//	26     }
//	30     public void switches(int i) { ... System.currentTimeMillis(); }
func ServiceViolatingDaoRulesClass() []byte {
	c := &Class{
		Access:     AccPublic | AccSuper,
		Name:       ServiceViolating,
		Super:      objectClass,
		SourceFile: "ServiceViolatingDaoRules.java",
		Fields: []Field{
			{Access: AccPrivate, Name: "entityManager", Desc: "L" + EntityManager + ";"},
			{Access: AccPrivate, Name: "myEntityManager", Desc: "L" + MyEntityManager + ";"},
		},
		Methods: []Method{
			defaultConstructor(12),
			{
				Access: AccPublic,
				Name:   "illegallyUseEntityManager",
				Desc:   "()V",
				Code: func(p *Pool) []byte {
					newObject := Concat(
						Op(0xbb, p.Class(objectClass)), []byte{0x59}, // new, dup
						Op(0xb7, p.Method(objectClass, "<init>", "()V")),
					)
					return Concat(
						// pc 0, line 24
						[]byte{0x2a}, Op(0xb4, p.Field(ServiceViolating, "entityManager", "L"+EntityManager+";")),
						newObject,
						Op(0xb9, p.InterfaceMethod(EntityManager, "persist", persistDescriptor)), []byte{2, 0},
						// pc 16, line 25
						[]byte{0x2a}, Op(0xb4, p.Field(ServiceViolating, "myEntityManager", "L"+MyEntityManager+";")),
						newObject,
						Op(0xb6, p.Method(MyEntityManager, "persist", persistDescriptor)),
						[]byte{0xb1},
					)
				},
				Lines: [][2]int{{16, 25}, {0, 24}, {30, 26}},
			},
			{
				Access: AccPublic,
				Name:   "switches",
				Desc:   "(I)V",
				Code: func(p *Pool) []byte {
					return Concat(
						[]byte{0x03},       // pc 0 iconst_0
						[]byte{0xaa, 0, 0}, // pc 1 tableswitch + 2 字节对齐
						U4(0xb8b8b8b8), U4(0), U4(1), U4(0xb6b6b6b6), U4(0xb9b9b9b9),
						[]byte{0xc4, 0x84, 0, 1, 0, 1}, // pc 24 wide iinc
						[]byte{0xab, 0},                // pc 30 lookupswitch + 1 字节对齐
						U4(0xb7b7b7b7), U4(1), U4(0xb4000001), U4(0xb5b5b5b5),
						Op(0xb8, p.Method("java/lang/System", "currentTimeMillis", "()J")), // pc 48
						[]byte{0x58, 0xb1}, // pop2, return
					)
				},
				Lines: [][2]int{{0, 30}, {48, 31}},
			},
		},
	}
	return c.Bytes()
}

// MyEntityManagerClass 嵌套抽象类, 实现 EntityManager
func MyEntityManagerClass() []byte {
	c := &Class{
		Access:     AccPublic | AccAbstract | AccSuper,
		Name:       MyEntityManager,
		Super:      objectClass,
		Interfaces: []string{EntityManager},
		SourceFile: "ServiceViolatingDaoRules.java",
		Methods:    []Method{defaultConstructor(15)},
	}
	return c.Bytes()
}

// EntityManagerClass 持久化接口
func EntityManagerClass() []byte {
	c := &Class{
		Access:     AccPublic | AccInterface | AccAbstract,
		Name:       EntityManager,
		Super:      objectClass,
		SourceFile: "EntityManager.java",
		Methods: []Method{
			{Access: AccPublic | AccAbstract, Name: "persist", Desc: persistDescriptor},
		},
	}
	return c.Bytes()
}

// MyDaoClass 标记注解
func MyDaoClass() []byte {
	c := &Class{
		Access:     AccPublic | AccInterface | AccAbstract | AccAnnotation,
		Name:       MyDao,
		Super:      objectClass,
		Interfaces: []string{"java/lang/annotation/Annotation"},
		SourceFile: "MyDao.java",
	}
	return c.Bytes()
}

// ProperDaoClass 被 @MyDao 注解, 合法地使用 EntityManager (第 14 行)
func ProperDaoClass() []byte {
	c := &Class{
		Access:      AccPublic | AccSuper,
		Name:        ProperDao,
		Super:       objectClass,
		SourceFile:  "ProperDao.java",
		Annotations: []Annotation{{Desc: "L" + MyDao + ";", Values: map[string]string{"value": "orders"}}},
		Fields: []Field{
			{Access: AccPrivate, Name: "entityManager", Desc: "L" + EntityManager + ";"},
		},
		Methods: []Method{
			defaultConstructor(8),
			{
				Access: AccPublic,
				Name:   "persistOrder",
				Desc:   "(Ljava/lang/Object;)V",
				Code: func(p *Pool) []byte {
					return Concat(
						[]byte{0x2a}, Op(0xb4, p.Field(ProperDao, "entityManager", "L"+EntityManager+";")),
						[]byte{0x2b}, // aload_1
						Op(0xb9, p.InterfaceMethod(EntityManager, "persist", persistDescriptor)), []byte{2, 0},
						[]byte{0xb1},
					)
				},
				Lines: [][2]int{{0, 14}, {10, 15}},
			},
			{
				// 桥接方法的调用点应被忽略
				Access: AccPublic | AccBridge | AccSynthetic,
				Name:   "persistOrder",
				Desc:   "(Ljava/lang/String;)V",
				Code: func(p *Pool) []byte {
					return Concat(
						[]byte{0x2a, 0x2b},
						Op(0xb6, p.Method(ProperDao, "persistOrder", "(Ljava/lang/Object;)V")),
						[]byte{0xb1},
					)
				},
				Lines: [][2]int{{0, 13}},
			},
		},
	}
	return c.Bytes()
}

// LinelessInterfaces 两个没有方法体的接口, 类文件中没有任何行号:
// a.service.Svc 继承 a.persistence.Repo
func LinelessInterfaces() map[string][]byte {
	iface := func(name, source string, supers ...string) []byte {
		c := &Class{
			Access:     AccPublic | AccInterface | AccAbstract,
			Name:       name,
			Super:      objectClass,
			Interfaces: supers,
			SourceFile: source,
		}
		return c.Bytes()
	}
	return map[string][]byte{
		"a/persistence/Repo.class": iface("a/persistence/Repo", "Repo.java"),
		"a/service/Svc.class":      iface("a/service/Svc", "Svc.java", "a/persistence/Repo"),
	}
}

// Scenario 返回场景中全部类文件, 键为 jar 内路径
func Scenario() map[string][]byte {
	return map[string][]byte{
		ServiceViolating + ".class": ServiceViolatingDaoRulesClass(),
		MyEntityManager + ".class":  MyEntityManagerClass(),
		EntityManager + ".class":    EntityManagerClass(),
		MyDao + ".class":            MyDaoClass(),
		ProperDao + ".class":        ProperDaoClass(),
	}
}
